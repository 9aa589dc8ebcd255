package util

import (
	"encoding/json"
	"math/big"

	"github.com/google/uuid"
)

// UIDRoot is the DICOM root for UIDs derived from UUIDs (PS3.5 B.2)
const UIDRoot = "2.25."

// UIDFromUUID renders u as a 2.25 DICOM UID, the UUID as one decimal integer
func UIDFromUUID(u uuid.UUID) string {
	return UIDRoot + new(big.Int).SetBytes(u[:]).String()
}

// NewUID returns a random 2.25 UID
func NewUID() string {
	return UIDFromUUID(uuid.New())
}

// HashUID returns a 2.25 UID derived from the JSON form of value; equal
// values give equal UIDs. It returns "" when value cannot be marshaled.
func HashUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return UIDFromUUID(uuid.NewMD5(uuid.NameSpaceOID, raw))
}

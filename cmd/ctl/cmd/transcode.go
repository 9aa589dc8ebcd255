package cmd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/transcode"
	"github.com/spf13/cobra"
	"golang.org/x/image/tiff"
)

var syntaxAliases = map[string]transfer.Syntax{
	"jxl":       transfer.JPEGXLLossless,
	"jxl-lossy": transfer.JPEGXL,
	"explicit":  transfer.ExplicitVRLittleEndian,
	"implicit":  transfer.ImplicitVRLittleEndian,
	"big":       transfer.ExplicitVRBigEndian,
}

func resolveSyntaxes(names []string) []string {
	ids := make([]string, len(names))
	for i, n := range names {
		if ts, ok := syntaxAliases[n]; ok {
			n = string(ts)
		}
		ids[i] = n
	}
	return ids
}

// NewTranscodeCmd moves a DICOM file between native and JPEG XL pixel data
func NewTranscodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcode",
		Short: "transcode DICOM pixel data",
		Long:  "re-encodes a DICOM file to the first applicable transfer syntax of --to: native files are encoded to JPEG XL, JPEG XL files are decoded to a native syntax",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(ctx, cmd)
			if err != nil {
				return err
			}
			to, _ := cmd.Flags().GetStringSlice("to")
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return fmt.Errorf("output path is required. Use --out")
			}

			tc := newTranscoder(ctx, cmd)
			res, err := tc.Transcode(data, "", resolveSyntaxes(to))
			if errors.Is(err, transcode.ErrNotApplicable) {
				return fmt.Errorf("nothing to do for %v", to)
			}
			if err != nil {
				return fmt.Errorf("failed to transcode: %v", err)
			}
			if err := os.WriteFile(out, res, 0o644); err != nil {
				return fmt.Errorf("failed to write: %v", err)
			}
			slog.InfoContext(ctx, "wrote", "path", out, "bytes", len(res))
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	addInputFlags(pf)
	pf.StringSliceP("to", "t", []string{"jxl"}, "acceptable transfer syntaxes, UIDs or jxl|jxl-lossy|explicit|implicit|big")
	pf.StringP("out", "o", "", "output DICOM path")
	return cmd
}

// NewDecodeCmd decodes one JPEG XL frame to raw samples or TIFF
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "decode a JPEG XL frame",
		Long:  "decodes one frame of a JPEG XL encapsulated DICOM file to raw little endian samples, or to TIFF with --tiff",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(ctx, cmd)
			if err != nil {
				return err
			}
			index, _ := cmd.Flags().GetInt("frame")
			out, _ := cmd.Flags().GetString("out")
			asTIFF, _ := cmd.Flags().GetBool("tiff")
			if out == "" {
				return fmt.Errorf("output path is required. Use --out")
			}

			frame, err := newTranscoder(ctx, cmd).DecodeForDisplay(data, index)
			if errors.Is(err, transcode.ErrNotApplicable) {
				return fmt.Errorf("not a JPEG XL file")
			}
			if err != nil {
				return fmt.Errorf("failed to decode: %v", err)
			}
			slog.InfoContext(ctx, "decoded",
				"frame", index,
				"format", frame.Format.String(),
				"width", frame.Info.Width,
				"height", frame.Info.Height,
				"signed", frame.Signed)
			if !asTIFF {
				return os.WriteFile(out, frame.Pixels, 0o644)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create: %v", err)
			}
			defer f.Close()
			if err := tiff.Encode(f, frameImage(frame), &tiff.Options{Compression: tiff.Deflate}); err != nil {
				return fmt.Errorf("failed to encode tiff: %v", err)
			}
			return f.Close()
		},
	}
	pf := cmd.PersistentFlags()
	addInputFlags(pf)
	pf.Int("frame", 0, "frame index")
	pf.StringP("out", "o", "", "output path")
	pf.Bool("tiff", false, "write TIFF instead of raw samples")
	return cmd
}

// frameImage wraps decoded samples in an image the TIFF encoder accepts.
// 16-bit samples are stored big endian by image.Gray16 and image.NRGBA64;
// signed samples are offset by 32768 so they sort as unsigned.
func frameImage(fr *transcode.Frame) image.Image {
	w, h := fr.Info.Width, fr.Info.Height
	rect := image.Rect(0, 0, w, h)
	switch fr.Format {
	case codec.Gray8:
		return &image.Gray{Pix: fr.Pixels, Stride: w, Rect: rect}
	case codec.Gray16:
		img := image.NewGray16(rect)
		for i := 0; i < w*h; i++ {
			v := binary.LittleEndian.Uint16(fr.Pixels[2*i:])
			if fr.Signed {
				v ^= 0x8000
			}
			binary.BigEndian.PutUint16(img.Pix[2*i:], v)
		}
		return img
	case codec.RGB24:
		img := image.NewNRGBA(rect)
		for i := 0; i < w*h; i++ {
			copy(img.Pix[4*i:4*i+3], fr.Pixels[3*i:3*i+3])
			img.Pix[4*i+3] = 0xFF
		}
		return img
	default:
		img := image.NewNRGBA64(rect)
		for i := 0; i < w*h; i++ {
			for c := 0; c < 3; c++ {
				v := binary.LittleEndian.Uint16(fr.Pixels[6*i+2*c:])
				binary.BigEndian.PutUint16(img.Pix[8*i+2*c:], v)
			}
			img.Pix[8*i+6], img.Pix[8*i+7] = 0xFF, 0xFF
		}
		return img
	}
}

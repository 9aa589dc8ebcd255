package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze cobra command
func NewAnalyzeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyze",
		Aliases: []string{"info"},
		Short:   "Analyze DICOM pixel data",
		Long:    "Parses a DICOM file and displays its image attributes, transfer syntax and pixel data frames. JPEG XL frames report their codestream header.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dumpFrame, _ := cmd.Flags().GetInt("dump-frame")
			out, _ := cmd.Flags().GetString("out")
			data, err := readInput(ctx, cmd)
			if err != nil {
				return err
			}
			return runAnalyze(data, newCodec(cmd), dumpFrame, out)
		},
	}

	pf := cmd.PersistentFlags()
	addInputFlags(pf)
	pf.Int("dump-frame", -1, "Index of frame to dump to disk")
	pf.String("out", "", "Output path for dumped frame")

	return cmd
}

func runAnalyze(data []byte, engine codec.Engine, dumpFrame int, outPath string) error {
	f, err := dicom.Parse(data)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if f.ParseWarning {
		fmt.Printf("Parse warnings: %d\n", len(f.Warnings))
	}
	fmt.Printf("Total elements: %d\n\n", len(f.Dataset.Elements))

	fmt.Println("=== Image Pixel ===")
	info := f.ImageInfo()
	fmt.Printf("Rows: %d\n", info.Height)
	fmt.Printf("Columns: %d\n", info.Width)
	fmt.Printf("SamplesPerPixel: %d\n", info.SamplesPerPixel)
	fmt.Printf("Photometric: %s\n", info.Photometric)
	fmt.Printf("BitsAllocated: %d\n", info.BitsAllocated)
	fmt.Printf("BitsStored: %d\n", info.BitsStored)
	fmt.Printf("HighBit: %d\n", info.HighBit)
	fmt.Printf("Signed: %v\n", info.IsSigned)
	fmt.Printf("NumberOfFrames: %d\n", max(info.NumberOfFrames, 1))

	syntax, err := f.TransferSyntax()
	if err != nil {
		fmt.Printf("TransferSyntax: %v\n", err)
	} else {
		fmt.Printf("TransferSyntax: %s (%s)\n", syntax, syntax.Name())
		fmt.Printf("Encapsulated: %v\n", syntax.IsEncapsulated())
	}
	fmt.Println()

	frames, err := frameData(f)
	if err != nil {
		fmt.Printf("No pixel data: %v\n", err)
		return nil
	}

	fmt.Println("=== Pixel Data ===")
	fmt.Printf("Frames: %d\n", len(frames))
	if dumpFrame >= 0 {
		if dumpFrame >= len(frames) {
			return fmt.Errorf("frame index %d out of bounds (0-%d)", dumpFrame, len(frames)-1)
		}
		if outPath == "" {
			outPath = fmt.Sprintf("frame_%d.bin", dumpFrame)
		}
		fmt.Printf("Dumping frame %d (%d bytes) to %s\n", dumpFrame, len(frames[dumpFrame]), outPath)
		return os.WriteFile(outPath, frames[dumpFrame], 0644)
	}

	encapsulated := syntax.IsEncapsulated()
	for i, fr := range frames[:min(len(frames), 3)] {
		fmt.Printf("\n--- Frame %d ---\n", i)
		if !encapsulated {
			fmt.Printf("Native bytes: %d\n", len(fr))
			continue
		}
		fmt.Printf("Compressed size: %d bytes\n", len(fr))
		if len(fr) > 20 {
			fmt.Printf("First 20 bytes: % X\n", fr[:20])
		}
		if !syntax.IsJPEGXL() {
			continue
		}
		ci, err := engine.DecodeInfo(fr)
		if err != nil {
			fmt.Printf("Decode error: %v\n", err)
			continue
		}
		fmt.Printf("Codestream: %dx%d, %d bit, %d channels\n", ci.Width, ci.Height, ci.BitsPerSample, ci.NumChannels)
		raw := codec.FormatFromInfo(ci).BufferSize(ci.Width, ci.Height)
		fmt.Printf("Ratio: %.2fx\n", float64(raw)/float64(len(fr)))
	}
	return nil
}

// frameData returns the fragments of encapsulated pixel data or the native
// frames
func frameData(f *dicom.File) ([][]byte, error) {
	if n, err := f.NumberOfFragments(); err == nil {
		frames := make([][]byte, n)
		for i := range frames {
			if frames[i], err = f.EncapsulatedFragment(i); err != nil {
				return nil, err
			}
		}
		return frames, nil
	}
	native, err := f.PixelData()
	if err != nil {
		return nil, err
	}
	count := max(f.ImageInfo().NumberOfFrames, 1)
	size := len(native) / count
	frames := make([][]byte, count)
	for i := range frames {
		frames[i] = native[i*size : (i+1)*size]
	}
	return frames, nil
}

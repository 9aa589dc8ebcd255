package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom"
	"github.com/spf13/cobra"
)

type benchResult struct {
	mode      string
	effort    int
	encode    time.Duration
	decode    time.Duration
	size      int
	ratio     float64
	roundtrip string
}

// NewEncodeRawCmd benchmarks every encode mode on one frame
func NewEncodeRawCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "encode-raw",
		Aliases: []string{"bench"},
		Short:   "benchmark the codec modes",
		Long:    "encodes one frame with every mode at each effort, decodes it again and prints size, ratio and timing. The frame comes from a native DICOM file, or from a raw file with --raw",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("raw")
			efforts, _ := cmd.Flags().GetIntSlice("effort")
			distance, _ := cmd.Flags().GetFloat32("distance")

			var pixels []byte
			var width, height int
			var format codec.PixelFormat
			if raw != "" {
				width, _ = cmd.Flags().GetInt("width")
				height, _ = cmd.Flags().GetInt("height")
				name, _ := cmd.Flags().GetString("format")
				var ok bool
				if format, ok = parseFormat(name); !ok {
					return fmt.Errorf("unknown pixel format %q", name)
				}
				data, err := os.ReadFile(raw)
				if err != nil {
					return fmt.Errorf("failed to open file: %v", err)
				}
				pixels = data
			} else {
				data, err := readInput(ctx, cmd)
				if err != nil {
					return err
				}
				f, err := dicom.Parse(data)
				if err != nil {
					return fmt.Errorf("failed to parse: %v", err)
				}
				frames, err := frameData(f)
				if err != nil {
					return fmt.Errorf("failed to read pixel data: %v", err)
				}
				info := f.ImageInfo()
				width, height = info.Width, info.Height
				format = codec.FormatFor(info.SamplesPerPixel, info.BitsAllocated)
				pixels = frames[0]
			}
			if want := format.BufferSize(width, height); len(pixels) < want || want == 0 {
				return fmt.Errorf("need %d bytes of %v for %dx%d, have %d", want, format, width, height, len(pixels))
			}
			pixels = pixels[:format.BufferSize(width, height)]

			engine := newCodec(cmd)
			var results []benchResult
			for _, effort := range efforts {
				for _, opts := range []codec.EncodeOptions{
					codec.ProgressiveLossless(effort, width/2, height/2),
					codec.Lossless(effort),
					codec.ProgressiveVarDCT(effort, distance, 0, false, width/2, height/2),
				} {
					r, err := runBench(engine, pixels, width, height, format, opts)
					if err != nil {
						return fmt.Errorf("%v e%d: %v", opts.Mode, effort, err)
					}
					results = append(results, r)
				}
			}
			printBench(width, height, format, len(pixels), results)
			for _, r := range results {
				if r.roundtrip == "FAIL" {
					return fmt.Errorf("%s e%d: roundtrip verification failed", r.mode, r.effort)
				}
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	addInputFlags(pf)
	pf.String("raw", "", "raw interleaved little endian samples instead of a DICOM file")
	pf.Int("width", 0, "raw image width")
	pf.Int("height", 0, "raw image height")
	pf.String("format", "Gray16", "raw pixel format (Gray8|Gray16|RGB24|RGB48)")
	pf.IntSlice("effort", []int{7, 9}, "efforts to run")
	pf.Float32("distance", 1.0, "VarDCT distance")
	return cmd
}

func parseFormat(name string) (codec.PixelFormat, bool) {
	for _, f := range []codec.PixelFormat{codec.Gray8, codec.Gray16, codec.RGB24, codec.RGB48} {
		if strings.EqualFold(f.String(), name) {
			return f, true
		}
	}
	return 0, false
}

func runBench(engine codec.Engine, pixels []byte, width, height int, format codec.PixelFormat, opts codec.EncodeOptions) (benchResult, error) {
	r := benchResult{mode: opts.Mode.String(), effort: opts.Effort}
	if !opts.IsLossless() {
		r.mode = fmt.Sprintf("%s d=%.1f", r.mode, opts.Distance)
	}
	start := time.Now()
	enc, err := engine.Encode(pixels, width, height, format, opts)
	if err != nil {
		return r, err
	}
	r.encode = time.Since(start)
	r.size = len(enc)
	r.ratio = float64(len(pixels)) / float64(len(enc))

	start = time.Now()
	dec, err := engine.Decode(enc, format)
	if err != nil {
		return r, err
	}
	r.decode = time.Since(start)
	switch {
	case !opts.IsLossless():
		r.roundtrip = "lossy"
	case bytes.Equal(dec, pixels):
		r.roundtrip = "OK"
	default:
		r.roundtrip = "FAIL"
	}
	return r, nil
}

func printBench(width, height int, format codec.PixelFormat, size int, results []benchResult) {
	fmt.Printf("\nImage: %dx%d, %v\n", width, height, format)
	fmt.Printf("Raw size: %.2f KB\n\n", float64(size)/1024)
	fmt.Printf("%-28s %6s %10s %10s %10s %8s %10s\n", "Mode", "Effort", "Enc (ms)", "Dec (ms)", "Size (KB)", "Ratio", "Roundtrip")
	fmt.Printf("%-28s %6s %10s %10s %10s %8s %10s\n", "----", "------", "--------", "--------", "---------", "-----", "---------")
	for _, r := range results {
		fmt.Printf("%-28s %6d %10.1f %10.1f %10.1f %7.2fx %10s\n",
			r.mode, r.effort,
			float64(r.encode.Microseconds())/1000, float64(r.decode.Microseconds())/1000,
			float64(r.size)/1024, r.ratio, r.roundtrip)
	}
	fmt.Println()
}

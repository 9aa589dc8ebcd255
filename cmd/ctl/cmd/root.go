package cmd

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/config"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom"
	"github.com/jpfielding/dcmjxl.go/pkg/logging"
	"github.com/jpfielding/dcmjxl.go/pkg/transcode"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dcmjxl",
		Short: "a CLI to transcode DICOM pixel data to and from JPEG XL",
		Long:  "dcmjxl moves DICOM files between native pixel data and JPEG XL encapsulated pixel data, decodes JPEG XL frames and benchmarks the codec",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")
			logJSON, _ := cmd.Flags().GetBool("log-json")

			var level slog.Level
			err := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
			if err != nil {
				level = slog.LevelInfo
			}
			var w io.Writer = os.Stdout
			if logFile != "" {
				w = logging.FileWriter(logFile, 0, 3)
			}
			slog.SetDefault(logging.Logger(w, logJSON, level))
			if err != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", err)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDumpCmd(ctx),
		NewAnalyzeCmd(ctx),
		NewTranscodeCmd(ctx),
		NewDecodeCmd(ctx),
		NewEncodeRawCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "rotate logs into this file instead of stdout")
	pf.Bool("log-json", false, "log as JSON")
	pf.String("config", "", "host configuration file (JSON or YAML) with an OrthancJxl section")
	pf.Int("workers", 0, "codec worker goroutines per call (0 uses all cores)")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
	return cmd
}

// NewDumpCmd prints the dataset of a DICOM file
func NewDumpCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "DICOM dump",
		Long:  "prints the file meta information and dataset of a DICOM file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(ctx, cmd)
			if err != nil {
				return err
			}
			f, err := dicom.Parse(data)
			if err != nil {
				return fmt.Errorf("failed to parse: %v", err)
			}
			for _, w := range f.Warnings {
				slog.WarnContext(ctx, "parse warning", "warning", w)
			}
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "text":
				if f.Meta != nil {
					fmt.Println(f.Meta)
				}
				fmt.Println(f.Dataset)
			default:
				j, err := json.Marshal(f.Dataset)
				if err != nil {
					return fmt.Errorf("failed to marshal: %v", err)
				}
				os.Stdout.Write(j)
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	addInputFlags(pf)
	pf.StringP("format", "f", "json", "output format (text|json)")
	return cmd
}

func addInputFlags(pf *pflag.FlagSet) {
	pf.StringP("uri", "u", "", "DICOM URI: a path, file://, http(s):// or - for stdin")
	pf.Bool("insecure", false, "skip TLS verification for https inputs")
	pf.Bool("verbose", false, "dump http request and response headers to stderr")
}

// readInput loads the whole input named by --uri (or the first argument)
func readInput(ctx context.Context, cmd *cobra.Command) ([]byte, error) {
	uri, _ := cmd.Flags().GetString("uri")
	if uri == "" && len(cmd.Flags().Args()) > 0 {
		uri = cmd.Flags().Arg(0)
	}
	uri = strings.TrimPrefix(uri, "file://")
	switch {
	case uri == "":
		return nil, fmt.Errorf("input is required. Use --uri or provide it as argument")
	case uri == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(uri, "http"):
		insecure, _ := cmd.Flags().GetBool("insecure")
		cl := &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %v", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %v", err)
		}
		defer resp.Body.Close()
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			reqDump, _ := httputil.DumpRequest(req, true)
			os.Stderr.Write(reqDump)
			resDump, _ := httputil.DumpResponse(resp, false)
			os.Stderr.Write(resDump)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to download: %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	default:
		data, err := os.ReadFile(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %v", err)
		}
		return data, nil
	}
}

// loadConfig reads --config; without one, or when it cannot be read, the
// defaults apply
func loadConfig(ctx context.Context, cmd *cobra.Command) config.Config {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		slog.WarnContext(ctx, "failed to load config, using defaults", "path", path, "error", err)
	}
	return cfg
}

func newCodec(cmd *cobra.Command) *codec.Codec {
	workers, _ := cmd.Flags().GetInt("workers")
	return &codec.Codec{Workers: workers, Logger: slog.Default()}
}

func newTranscoder(ctx context.Context, cmd *cobra.Command) *transcode.Transcoder {
	tc := transcode.New(loadConfig(ctx, cmd))
	tc.Engine = newCodec(cmd)
	tc.Logger = slog.Default()
	return tc
}

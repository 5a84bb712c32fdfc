// Command vision-client is a command-line front end for the vision-service API.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/book-expert/vision-service/internal/core"
	"github.com/spf13/cobra"
)

// Version is the client version.
const Version = "0.1.0"

// Flag names and defaults.
const (
	flagServer       = "server"
	flagTimeout      = "timeout"
	flagPrompt       = "prompt"
	flagLang         = "lang"
	flagAudioOut     = "audio-out"
	flagNoAudio      = "no-audio"
	defaultServerURL = "http://localhost:8000"
	defaultTimeout   = 2 * time.Minute
)

// ErrNoAudio is returned when --audio-out was requested but no clip came back.
var ErrNoAudio = errors.New("server returned no audio")

type clientOptions struct {
	server   string
	timeout  time.Duration
	prompt   string
	language string
	audioOut string
	noAudio  bool
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	rootCmd := &cobra.Command{
		Use:           "vision-client",
		Short:         "Analyze images with the vision-service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVar(&opts.server, flagServer, defaultServerURL, "vision-service base URL")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, flagTimeout, defaultTimeout, "request timeout")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts),
		newHealthCmd(opts),
		newSamplesCmd(opts),
		newTestImageCmd(opts),
	)

	return rootCmd
}

func newAnalyzeCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Detect objects and text in a local image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.prompt, flagPrompt, core.DefaultPrompt, "detection prompt, categories separated by '.'")
	cmd.Flags().StringVar(&opts.language, flagLang, core.DefaultOCRLanguage, "OCR language: eng, hin or eng+hin")
	cmd.Flags().StringVar(&opts.audioOut, flagAudioOut, "", "write the spoken description to this file")
	cmd.Flags().BoolVar(&opts.noAudio, flagNoAudio, false, "skip speech synthesis")
	cmd.MarkFlagsMutuallyExclusive(flagAudioOut, flagNoAudio)

	return cmd
}

func newHealthCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := newAPIClient(opts.server, opts.timeout).Health(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\ndetector loaded: %t\ndevice: %s\n",
				status.Status, status.GlipLoaded, status.Device)

			return nil
		},
	}
}

func newSamplesCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the sample images known to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := newAPIClient(opts.server, opts.timeout).ListSamples(cmd.Context())
			if err != nil {
				return err
			}

			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sample images found.")

				return nil
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}

func newTestImageCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-image <name>",
		Short: "Analyze one of the service's sample images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newAPIClient(opts.server, opts.timeout).
				TestImage(cmd.Context(), args[0], opts.prompt, opts.language)
			if err != nil {
				return err
			}

			printFindings(cmd.OutOrStdout(), result.Objects, result.OCR)

			return nil
		},
	}

	cmd.Flags().StringVar(&opts.prompt, flagPrompt, core.DefaultPrompt, "detection prompt, categories separated by '.'")
	cmd.Flags().StringVar(&opts.language, flagLang, core.DefaultOCRLanguage, "OCR language: eng, hin or eng+hin")

	return cmd
}

// encodeImageFile reads an image and renders it as a data URL.
func encodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func runAnalyze(ctx context.Context, out io.Writer, opts *clientOptions, imagePath string) error {
	payload, err := encodeImageFile(imagePath)
	if err != nil {
		return err
	}

	wantAudio := !opts.noAudio

	reply, err := newAPIClient(opts.server, opts.timeout).Analyze(ctx, core.AnalyzeRequest{
		Image:         payload,
		Prompt:        opts.prompt,
		OCRLanguage:   opts.language,
		GenerateAudio: &wantAudio,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, reply.Description)

	ocr := core.EmptyOCRResult()
	if reply.OCR != nil {
		ocr = *reply.OCR
	}

	printFindings(out, reply.Objects, ocr)

	if opts.audioOut == "" {
		return nil
	}

	return writeAudio(out, reply.Audio, opts.audioOut)
}

func writeAudio(out io.Writer, encoded *string, path string) error {
	if encoded == nil {
		return ErrNoAudio
	}

	audio, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return fmt.Errorf("failed to decode audio: %w", err)
	}

	err = os.WriteFile(path, audio, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write audio to %s: %w", path, err)
	}

	fmt.Fprintf(out, "Audio written to %s\n", path)

	return nil
}

func printFindings(out io.Writer, objects []core.DetectionRecord, ocr core.OCRResult) {
	if len(objects) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "LABEL\tCONFIDENCE\tBOX")

		for _, object := range objects {
			fmt.Fprintf(w, "%s\t%.2f\t%v\n", object.Label, object.Confidence, object.BBox)
		}

		_ = w.Flush()
	}

	if ocr.FullText != "" {
		fmt.Fprintf(out, "Text (%d words):\n%s\n", len(ocr.Words), ocr.FullText)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

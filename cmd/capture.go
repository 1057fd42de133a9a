package cmd

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivion/rivion/internal/camera"
	"github.com/rivion/rivion/internal/capture"
	"github.com/rivion/rivion/internal/client"
	"github.com/rivion/rivion/internal/config"
	"github.com/rivion/rivion/internal/detector/cascade"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the interactive webcam capture client",
	Long: `Opens the webcam, tracks your face and prints positioning feedback.
Press Enter to capture a frame and send it to the analysis API, or q to
quit. The API address comes from BACKEND_URL.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().String("user", "", "Your name, stored with analysis results (required)")
	captureCmd.Flags().Bool("agree-privacy", false, "Agree to storing your captured face images")
	captureCmd.Flags().Bool("search", false, "Analyze without storing anything (ignores --agree-privacy)")
	_ = captureCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	userName := mustGetString(cmd, "user")
	searchOnly := mustGetBool(cmd, "search")
	agreed := mustGetBool(cmd, "agree-privacy")

	if !searchOnly && !agreed {
		return fmt.Errorf("pass --agree-privacy to store captures, or --search to analyze without storing")
	}

	api := client.New(cfg.Capture.BackendURL)
	if err := api.Health(cmd.Context()); err != nil {
		return fmt.Errorf("analysis API at %s is not reachable: %w", cfg.Capture.BackendURL, err)
	}

	loop := capture.New(cascade.New(), camera.New(), capture.Options{
		ModelDir:     cfg.Capture.ModelDir,
		PollInterval: time.Duration(cfg.Capture.PollMillis) * time.Millisecond,
		Constraints: capture.Constraints{
			DeviceID: cfg.Capture.DeviceID,
			Width:    cfg.Capture.OutputWidth,
			Height:   cfg.Capture.OutputHeight,
		},
	})
	defer loop.Stop()

	fmt.Println("Loading face detection models...")
	if err := loop.Start(cmd.Context()); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	fmt.Println("Camera ready. Press Enter to capture, q to quit.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	feedback := time.NewTicker(time.Second)
	defer feedback.Stop()
	var lastFeedback string

	for {
		select {
		case <-sigChan:
			fmt.Println("\nStopping capture...")
			return nil
		case <-feedback.C:
			state := loop.State()
			if state.FaceDetected && state.Feedback != lastFeedback {
				fmt.Printf("  %s (%.0f%% of frame)\n", state.Feedback, state.FacePercentage)
				lastFeedback = state.Feedback
			}
		case line, ok := <-lines:
			if !ok || line == "q" {
				return nil
			}
			if err := captureAndAnalyze(cmd.Context(), loop, api, userName, searchOnly); err != nil {
				fmt.Printf("  %v\n", err)
			}
		}
	}
}

func captureAndAnalyze(ctx context.Context, loop *capture.Loop, api *client.Client, userName string, searchOnly bool) error {
	encoded, err := loop.Capture()
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	imageData, err := decodeDataURL(encoded)
	if err != nil {
		return fmt.Errorf("decoding capture: %w", err)
	}

	fmt.Println("Analyzing...")
	var result *client.AnalysisResult
	if searchOnly {
		result, err = api.Search(ctx, imageData)
	} else {
		result, err = api.AnalyzeFace(ctx, imageData, userName, true)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("analysis rejected: %s", result.Error)
	}

	fmt.Printf("\n%s\n", result.Statement)
	if result.SimilarImagesFound > 0 {
		fmt.Printf("Matched %d similar images in the gallery\n", result.SimilarImagesFound)
	}
	if result.SessionID != "" {
		fmt.Printf("Session: %s\n", result.SessionID)
	}
	fmt.Println()
	return nil
}

func decodeDataURL(encoded string) ([]byte, error) {
	_, payload, found := strings.Cut(encoded, ",")
	if !found {
		return nil, fmt.Errorf("not a data URL")
	}
	return base64.StdEncoding.DecodeString(payload)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rivion",
	Short: "Face capture and emotion analysis toolkit",
	Long: `Rivion captures faces from a webcam, recognizes returning visitors by
comparing face encodings against a local gallery and tells them how they
look using an emotion analysis provider (DeepFace, OpenAI, Gemini or a
built-in heuristic).`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

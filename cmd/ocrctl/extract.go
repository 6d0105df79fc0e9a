package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	ocrv1 "github.com/joseph-ayodele/vlm-ocr/gen/proto/ocr/v1"
)

var (
	imagePath string
	prompt    string
	requestID string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract text from an image",
	Long:  "Send an image and an extraction prompt to the server and print the model's answer.",
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&imagePath, "image", "", "Path to the image file")
	extractCmd.Flags().StringVar(&prompt, "prompt", "", "Extraction instruction")
	extractCmd.Flags().StringVar(&requestID, "request-id", "", "Optional x-request-id to send")
	_ = extractCmd.MarkFlagRequired("image")
	_ = extractCmd.MarkFlagRequired("prompt")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("--prompt must not be blank")
	}

	conn, err := dial()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := callContext(cmd)
	defer cancel()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}

	var header metadata.MD
	resp, err := ocrv1.NewOCRServiceClient(conn).ExtractOCR(ctx, &ocrv1.ExtractOCRRequest{
		Image:  data,
		Prompt: prompt,
	}, grpc.Header(&header))
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if ids := header.Get("x-request-id"); len(ids) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "request id:", ids[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.GetOutput())
	return nil
}

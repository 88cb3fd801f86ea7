package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// tokenEnv holds the bearer token when --token is not given.
const tokenEnv = "MERGECTL_TOKEN"

type uploadOptions struct {
	server  string
	token   string
	timeout time.Duration
}

type uploadResponse struct {
	Success bool                 `json:"success"`
	Data    *models.UploadedFile `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
}

func newUploadCmd() *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:     "upload FILE",
		Short:   "Upload a dataset file to an ekaya-merge server",
		Example: `  MERGECTL_TOKEN=... mergectl upload orders.csv --server https://merge.example.com`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				opts.token = os.Getenv(tokenEnv)
			}
			return runUpload(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:3480", "server base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token (defaults to $"+tokenEnv+")")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	return cmd
}

func runUpload(cmd *cobra.Command, path string, opts *uploadOptions) error {
	if opts.token == "" {
		return fmt.Errorf("a bearer token is required (--token or $%s)", tokenEnv)
	}

	body, contentType, err := multipartBody(path)
	if err != nil {
		return err
	}

	url := strings.TrimRight(opts.server, "/") + "/api/reports/uploads"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+opts.token)

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("upload %s: %s (unreadable response: %v)", path, resp.Status, err)
	}
	if resp.StatusCode != http.StatusCreated || out.Data == nil {
		return fmt.Errorf("upload %s: %s: %s", path, resp.Status, strings.TrimSpace(out.Error+" "+out.Message))
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\nTable id: %s\n",
		out.Data.Name, out.Data.SizeBytes, out.Data.ID)
	return err
}

func multipartBody(path string) (io.Reader, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", contentTypeFor(path))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return models.ContentTypeCSV
	case ".tsv":
		return models.ContentTypeTSV
	case ".txt":
		return models.ContentTypeText
	case ".xlsx", ".xlsm":
		return models.ContentTypeXLSX
	default:
		return "application/octet-stream"
	}
}

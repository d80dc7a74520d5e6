package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/kinsync/internal/files"
	"github.com/syntrixbase/kinsync/internal/request"
	"github.com/syntrixbase/kinsync/pkg/model"
)

func newUploadCmd(a *app) *cobra.Command {
	var (
		path, mimeType, id string
		public             bool
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a file with the resumable blob protocol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.App.AppKey == "" {
				return model.NewError(model.ErrMissingConfiguration, "app.app_key is required to upload")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(path))
			}

			client := request.NewClientFromConfig(a.cfg.App, a.cfg.HTTP, nil, a.logger)
			uploader := files.NewUploader(client, a.cfg.App.AppKey,
				files.WithMaxBackoff(a.cfg.Upload.MaxBackoff),
				files.WithLogger(a.logger),
			)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			doc, err := uploader.Upload(ctx, data, files.Metadata{
				ID:       id,
				Filename: filepath.Base(path),
				MimeType: mimeType,
				Size:     int64(len(data)),
				Public:   public,
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			// the payload is already on disk
			delete(doc, "_data")
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "file to upload")
	cmd.Flags().StringVar(&mimeType, "mime", "", "mime type, guessed from the extension when empty")
	cmd.Flags().StringVar(&id, "id", "", "replace the file with this id")
	cmd.Flags().BoolVar(&public, "public", false, "make the file publicly readable")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

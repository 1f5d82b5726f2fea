package dispatcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/vietddude/relaychat/internal/core/domain"
	"golang.org/x/sync/errgroup"
)

// encodeAttachments reads every file in parallel and returns their wire form.
// Any single failure fails the whole set.
func encodeAttachments(ctx context.Context, files []domain.File) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	out := make([]domain.Attachment, len(files))
	g, ctx := errgroup.WithContext(ctx)

	for i, f := range files {
		g.Go(func() error {
			a, err := encodeFile(ctx, f)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeFile(ctx context.Context, f domain.File) (domain.Attachment, error) {
	if f.Open == nil {
		return domain.Attachment{}, fmt.Errorf("attachment %q has no content", f.Name)
	}

	rc, err := f.Open(ctx)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("open attachment %q: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("read attachment %q: %w", f.Name, err)
	}

	size := f.Size
	if size <= 0 {
		size = int64(len(data))
	}

	return domain.Attachment{
		Name: f.Name,
		Type: f.Type,
		Data: base64.StdEncoding.EncodeToString(data),
		Size: size,
	}, nil
}

// FileFromPath describes a local file as an attachment.
func FileFromPath(path string) (domain.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.File{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return domain.File{}, fmt.Errorf("attachment %s is a directory", path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return domain.File{
		Name: filepath.Base(path),
		Type: mimeType,
		Size: info.Size(),
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
)

// CookbookCreateAction は料理本を登録するコマンドのアクション
func CookbookCreateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var author *string
	if a := cmd.String("author"); a != "" {
		author = &a
	}
	cb, err := appCtx.Container.IngestionService.CreateCookbook(ctx, cmd.String("title"), author)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"id":        cb.ID,
		"title":     cb.Title,
		"author":    cb.Author,
		"createdAt": cb.CreatedAt,
	})
}

// CookbookAddPagesAction は索引ページ画像を追加するコマンドのアクション
func CookbookAddPagesAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag(cmd, "id")
	if err != nil {
		return err
	}
	uploads, err := loadPageFiles(cmd.Args().Slice())
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	pages, err := appCtx.Container.IngestionService.AddPages(ctx, id, uploads)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{"cookbookId": id, "pageCount": len(pages)})
}

// loadPageFiles は画像ファイルを読み込む。Content-Type は拡張子から決める
func loadPageFiles(paths []string) ([]ingestion.PageUpload, error) {
	uploads := make([]ingestion.PageUpload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}
		uploads = append(uploads, ingestion.PageUpload{
			Filename:    filepath.Base(path),
			ContentType: contentTypeOf(path),
			Data:        data,
		})
	}
	return uploads, nil
}

func contentTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

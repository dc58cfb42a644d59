package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/cookbook-catalog/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "cookbook-catalog",
		Usage: "料理本の索引ページからレシピと食材のカタログを作るシステム",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTP API サーバを起動",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "待ち受けポート（省略時は HTTP_PORT）",
					},
				},
				Action: appcli.ServerStartAction,
			},
			{
				Name:   "migrate",
				Usage:  "データベーススキーマを適用",
				Flags:  []cli.Flag{envFlag()},
				Action: appcli.MigrateAction,
			},
			{
				Name:  "ingredient",
				Usage: "食材管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "食材詳細を表示",
						Flags:  []cli.Flag{envFlag(), idFlag("id", "食材ID")},
						Action: appcli.IngredientShowAction,
					},
					{
						Name:  "rename",
						Usage: "食材名を変更",
						Flags: []cli.Flag{
							envFlag(),
							idFlag("id", "食材ID"),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "新しい食材名",
								Required: true,
							},
						},
						Action: appcli.IngredientRenameAction,
					},
					{
						Name:  "aliases",
						Usage: "食材の別名を置き換え",
						Flags: []cli.Flag{
							envFlag(),
							idFlag("id", "食材ID"),
							&cli.StringSliceFlag{
								Name:  "alias",
								Usage: "別名（複数指定可、省略時はすべて削除）",
							},
						},
						Action: appcli.IngredientAliasesAction,
					},
					{
						Name:   "delete",
						Usage:  "レシピから参照されていない食材を削除",
						Flags:  []cli.Flag{envFlag(), idFlag("id", "食材ID")},
						Action: appcli.IngredientDeleteAction,
					},
					{
						Name:  "merge",
						Usage: "複数の食材を1つに統合",
						Flags: []cli.Flag{
							envFlag(),
							idFlag("target", "統合先の食材ID"),
							&cli.StringSliceFlag{
								Name:     "source",
								Usage:    "統合元の食材ID（複数指定可）",
								Required: true,
							},
						},
						Action: appcli.IngredientMergeAction,
					},
				},
			},
			{
				Name:  "cookbook",
				Usage: "料理本管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "料理本を登録",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "title",
								Usage:    "タイトル",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "author",
								Usage: "著者",
							},
						},
						Action: appcli.CookbookCreateAction,
					},
					{
						Name:      "add-pages",
						Usage:     "索引ページ画像（JPEG/PNG）を追加",
						ArgsUsage: "<画像ファイル>...",
						Flags:     []cli.Flag{envFlag(), idFlag("id", "料理本ID")},
						Action:    appcli.CookbookAddPagesAction,
					},
				},
			},
			{
				Name:  "ocr",
				Usage: "索引ページの OCR コマンド",
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "OCR を実行して完了まで待つ",
						Flags:  []cli.Flag{envFlag(), idFlag("id", "料理本ID")},
						Action: appcli.OCRStartAction,
					},
					{
						Name:  "status",
						Usage: "OCR ジョブの状態を表示",
						Flags: []cli.Flag{
							envFlag(),
							idFlag("id", "料理本ID"),
							&cli.BoolFlag{
								Name:  "results",
								Usage: "抽出結果も表示",
							},
						},
						Action: appcli.OCRStatusAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func idFlag(name, usage string) cli.Flag {
	return &cli.StringFlag{
		Name:     name,
		Usage:    usage,
		Required: true,
	}
}

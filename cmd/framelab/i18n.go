// Package main provides localization for the framelab CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Logging":       "ログ",
		"Processing":    "処理",
		"Export":        "書き出し",
		"Capture":       "キャプチャ",
		"Output":        "出力先",

		// Root command
		"Inspect, filter and cut images, videos and camera streams": "画像・動画・カメラ映像の確認、フィルタ処理、分割",
		"framelab runs frames from an image, a video file or a camera through a filter chain, lets you zoom into regions, mark cut points and export the segments between them.": "framelabは画像、動画ファイル、カメラのフレームをフィルタチェーンに通し、領域の拡大、カットポイントの指定、その間のセグメントの書き出しを行います。",
		"Error: %v": "エラー: %v",

		// Global flags
		"YAML configuration file": "YAML設定ファイル",
		"Path to the ffmpeg binary (falls back to FFMPEG_PATH, then PATH)": "ffmpegバイナリのパス（未指定時はFFMPEG_PATH、次にPATHを使用）",
		"Log level (debug, info, warn, error)":                             "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                                          "ログ出力をすべて抑制",

		// Processing flags
		"Filter to apply, repeatable (%s)":                              "適用するフィルタ、複数指定可（%s）",
		"Processing mode (independent, cascade)":                        "処理モード（independent, cascade）",
		"Region in source pixels as x0,y0,x1,y1":                        "元画像のピクセル座標で指定する領域 x0,y0,x1,y1",
		"Zoom into the region before saving":                            "保存前に領域を拡大表示",
		"Export only the zoomed region":                                 "拡大した領域のみを書き出し",
		"Scale factor for the saved region (1 keeps the original size)": "保存する領域の拡大率（1で元のサイズ）",
		"Video position in seconds":                                     "動画の位置（秒）",
		"--region is required":                                          "--region の指定が必要です",

		// Commands
		"Apply filters to an image or the first frame of a video":  "画像または動画の最初のフレームにフィルタを適用",
		"Save a region of an image or video frame":                 "画像または動画フレームの一部領域を保存",
		"Split a video at cut points and export the segments":      "動画をカットポイントで分割しセグメントを書き出し",
		"Record processed frames from a camera":                    "カメラから処理済みフレームを録画",
		"Interactive session reading commands from standard input": "標準入力からコマンドを読む対話セッション",
		"Show version information":                                 "バージョン情報を表示",
		"framelab version %s":                                      "framelab バージョン %s",

		// Export
		"Cut point in seconds or H:MM:SS.mmm, repeatable": "カットポイント（秒またはH:MM:SS.mmm）、複数指定可",
		"Export mode (frames, video)":                     "書き出しモード（frames, video）",
		"Output directory":                                "出力ディレクトリ",
		"Output image path":                               "出力画像のパス",
		"Exporting":                                       "書き出し中",
		"%s is not a video":                               "%s は動画ではありません",
		"segment %d: %s (%d frames)":                      "セグメント %d: %s（%d フレーム）",
		"segment %d: failed: %v":                          "セグメント %d: 失敗: %v",
		"%d of %d segments failed":                        "%d / %d セグメントが失敗しました",
		"%d segments, %d frames, %d failed":               "%d セグメント、%d フレーム、失敗 %d",

		// Record
		"Camera device index":                            "カメラデバイス番号",
		"Recording length (0 records until interrupted)": "録画時間（0で中断されるまで録画）",
		"Recording mode (frames, video)":                 "録画モード（frames, video）",
		"Recording to %s":                                "%s に録画中",
		"%d frames written to %s":                        "%d フレームを %s に書き出しました",

		// Play
		"Write the display canvas to this image after every frame": "フレームごとに表示キャンバスをこの画像に書き出し",
		"speed %.2fx":          "速度 %.2f倍",
		"cut at %s":            "%s にカット",
		"selected %d,%d-%d,%d": "選択範囲 %d,%d-%d,%d",
	})
}

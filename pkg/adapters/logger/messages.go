package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Opened %s %s (%dx%d)":          "%s %s を開きました (%dx%d)",
		"Failed to open %s: %v":         "%s を開けませんでした: %v",
		"Closing source failed: %v":     "入力を閉じられませんでした: %v",
		"Processing mode: %s":           "処理モード: %s",
		"Applied filter %s (%s)":        "フィルタ %s を適用しました (%s)",
		"Saved %dx%d image to %s":       "%dx%d の画像を %s に保存しました",
		"Failed to save image: %v":      "画像を保存できませんでした: %v",
		"Cut point marked at %s":        "%s にカットポイントを設定しました",
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",

		// Export stage
		"Exporting %d segments as %s to %s":                  "%d セグメントを %s として %s に書き出し中",
		"Segment %d: %d frames (%.2fs - %.2fs)":              "セグメント %d: %d フレーム (%.2fs - %.2fs)",
		"Segment %d failed: %v":                              "セグメント %d が失敗しました: %v",
		"Skipping frame in segment %d: %v":                   "セグメント %d のフレームをスキップ: %v",
		"Export completed: %d frames in %d segments":         "書き出し完了: %d フレーム、%d セグメント",
		"Export finished: %d segments, %d frames, %d failed": "書き出し終了: %d セグメント、%d フレーム、失敗 %d",
		"Export failed: %v":                                  "書き出しに失敗しました: %v",
		"Failed to write summary: %v":                        "サマリーを書き込めませんでした: %v",

		// Record stage
		"Recording started: %s (%dx%d @ %.2f fps)":   "録画開始: %s (%dx%d @ %.2f fps)",
		"Recording stopped: %d frames written to %s": "録画停止: %d フレームを %s に書き出しました",
		"Recording failed: %v":                       "録画に失敗しました: %v",
		"Failed to stop recording: %v":               "録画を停止できませんでした: %v",

		// Playback loop
		"Tick failed: %v":                                              "フレーム更新に失敗しました: %v",
		"End of stream at frame %d":                                    "フレーム %d でストリームが終了しました",
		"Skipping frame %d: %v":                                        "フレーム %d をスキップ: %v",
		"Closing previous source failed: %v":                           "前の入力を閉じられませんでした: %v",
		"Stopping after %d unreadable frames: %v":                      "読み取れないフレームが %d 回続いたため停止します: %v",
		"Recording finished at end of stream: %d frames written to %s": "ストリーム終了により録画完了: %d フレームを %s に書き出しました",

		// Encoder selection
		"Encoder %s not available, falling back to %s":          "エンコーダー %s は利用できません。%s にフォールバックします",
		"No video encoder available, video output disabled: %v": "利用可能な動画エンコーダーがありません。動画出力は無効です: %v",
		"OpenCV backend not built in, using ffmpeg":             "OpenCVバックエンドが組み込まれていないため、ffmpegを使用します",

		// Detector worker
		"Detector worker started: %s (pid %d)": "検出ワーカーを起動しました: %s (pid %d)",
		"Detector worker exited: %v":           "検出ワーカーが終了しました: %v",
		"Detected %d objects in %.1fms":        "%d 個の物体を %.1fms で検出しました",
		"worker: %s":                           "ワーカー: %s",

		// Export summary
		"Export Summary":            "書き出しサマリー",
		"Generated":                 "生成日時",
		"Source":                    "入力",
		"Item":                      "項目",
		"Value":                     "値",
		"Path":                      "パス",
		"Resolution":                "解像度",
		"Frame Rate":                "フレームレート",
		"Duration":                  "長さ",
		"Codec":                     "コーデック",
		"Mode":                      "モード",
		"Filters":                   "フィルタ",
		"Zoom":                      "ズーム",
		"None":                      "なし",
		"Output Mode":               "出力モード",
		"Destination":               "出力先",
		"Cut Points":                "カットポイント",
		"Boundaries":                "境界",
		"Merge Within":              "統合間隔",
		"Quality":                   "品質",
		"Total Frames":              "総フレーム数",
		"Elapsed":                   "所要時間",
		"Segments":                  "セグメント",
		"No segments were written.": "セグメントは書き出されませんでした。",
		"Start":                     "開始",
		"End":                       "終了",
		"Frames":                    "フレーム",
		"Status":                    "状態",
		"OK":                        "成功",
		"Failed":                    "失敗",
		"skipped":                   "スキップ",
	})
}

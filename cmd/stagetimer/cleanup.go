// cleanup.go — очистка директории загрузок при старте.
package main

import (
	"log/slog"
	"strings"
)

// uploadLister — операции хранилища, нужные для очистки.
type uploadLister interface {
	ListFiles() ([]string, error)
	DeleteFile(storageName string) error
}

// cleanUploads удаляет незавершённые временные файлы, а при all == true —
// все файлы директории: таймеры не переживают перезапуск, и изображения
// прошлого запуска никому не принадлежат. Возвращает число удалённых файлов.
func cleanUploads(store uploadLister, all bool, logger *slog.Logger) int {
	names, err := store.ListFiles()
	if err != nil {
		logger.Warn("Не удалось прочитать директорию загрузок", slog.String("error", err.Error()))
		return 0
	}

	removed := 0
	for _, name := range names {
		if !all && !strings.HasSuffix(name, ".tmp") {
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}
		if err := store.DeleteFile(name); err != nil {
			logger.Warn("Не удалось удалить файл",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("Директория загрузок очищена",
			slog.Int("removed", removed),
			slog.Bool("all", all),
		)
	}
	return removed
}

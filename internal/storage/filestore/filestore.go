// Пакет filestore — операции с файлами изображений на диске.
// Обеспечивает атомарную запись с подсчётом SHA-256 на лету,
// удаление и перечисление файлов директории загрузок.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// tmpSuffix — суффикс временных файлов, используемых при записи.
const tmpSuffix = ".tmp"

// FileStore — управление файлами в директории загрузок.
type FileStore struct {
	// dataDir — корневая директория хранения файлов (ST_UPLOAD_DIR)
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — имя файла в dataDir
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт новый FileStore. Создаёт директорию, если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// SaveFile записывает данные из reader в файл storageName.
// Имя должно быть простым (без разделителей пути).
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, storageName string) (*SaveResult, error) {
	if err := validateName(storageName); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(fs.dataDir, storageName)
	tmpPath := fullPath + tmpSuffix

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: storageName,
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// DeleteFile удаляет файл. Возвращает nil, если файл уже не существует.
func (fs *FileStore) DeleteFile(storageName string) error {
	if err := validateName(storageName); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(fs.dataDir, storageName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storageName, err)
	}
	return nil
}

// ListFiles возвращает имена обычных файлов директории загрузок,
// включая незавершённые временные (*.tmp).
func (fs *FileStore) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.dataDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DataDir возвращает путь к директории загрузок.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// validateName запрещает пустые имена, разделители пути и "..".
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("недопустимое имя файла: %q", name)
	}
	return nil
}

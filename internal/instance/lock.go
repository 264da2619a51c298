// lock.go — единственный экземпляр vaultkeeper на директорию данных.
//
// Алгоритм:
//  1. Неблокирующий эксклюзивный lock на {dataDir}/.vaultkeeper.lock
//  2. Если lock получен, в файл записывается "pid адрес" текущего процесса
//  3. Иначе возвращается ErrLocked с данными владельца из того же файла
//
// WAL рассчитан на одну транзакцию от одного процесса: второй экземпляр,
// запущенный над той же директорией, мог бы выполнить восстановление
// поверх живой транзакции первого.
package instance

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LockFileName — имя lock-файла в директории данных.
const LockFileName = ".vaultkeeper.lock"

// ErrLocked — директория данных занята другим экземпляром.
var ErrLocked = errors.New("директория данных используется другим экземпляром vaultkeeper")

// Lock — захваченная блокировка директории данных.
type Lock struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Acquire захватывает блокировку директории данных.
// addr записывается в lock-файл для диагностики.
func Acquire(dataDir, addr string, logger *slog.Logger) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	path := filepath.Join(dataDir, LockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть lock-файл %s: %w", path, err)
	}

	if err := tryLock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			holder := readHolder(path)
			if holder != "" {
				return nil, fmt.Errorf("%w (%s)", ErrLocked, holder)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("ошибка захвата lock-файла %s: %w", path, err)
	}

	l := &Lock{
		path:   path,
		file:   f,
		logger: logger.With(slog.String("component", "instance")),
	}

	if err := l.writeHolder(addr); err != nil {
		l.logger.Warn("Не удалось записать данные владельца в lock-файл",
			slog.String("error", err.Error()),
		)
	}

	l.logger.Info("Директория данных захвачена",
		slog.String("lock", path),
		slog.Int("pid", os.Getpid()),
	)

	return l, nil
}

// Path возвращает путь к lock-файлу.
func (l *Lock) Path() string {
	return l.path
}

// Release снимает блокировку. Повторный вызов безопасен.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	_ = l.file.Truncate(0)
	_ = unlock(l.file)
	_ = l.file.Close()
	l.file = nil

	l.logger.Info("Lock освобождён")
}

func (l *Lock) writeHolder(addr string) error {
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.WriteAt([]byte(fmt.Sprintf("%d %s\n", os.Getpid(), addr)), 0); err != nil {
		return err
	}
	return l.file.Sync()
}

// readHolder читает "pid адрес" владельца. Пустая строка, если данных нет.
func readHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(data))
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return "pid " + fields[0]
	default:
		return fmt.Sprintf("pid %s, %s", fields[0], fields[1])
	}
}

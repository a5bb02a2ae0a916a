package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀) - 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫) - 適用於私鑰、機密檔
	FileModePrivate fs.FileMode = 0600
)

var (
	// ErrWriteFailed 寫入失敗，且已截回寫入前的大小：檔案裡確定沒有這筆
	ErrWriteFailed = errors.New("wal: write failed")
	// ErrWriteIncomplete 寫入失敗且截不回去，檔尾留下沒有換行的半筆資料
	// 重放時半筆會被丟掉，這筆一樣算沒寫入；之後的寫入回傳 ErrBroken
	ErrWriteIncomplete = errors.New("wal: write incomplete")
	// ErrSyncFailed 已寫入但 fsync 失敗，資料是否落地不確定
	ErrSyncFailed = errors.New("wal: sync failed")
	// ErrBroken 之前截不回去，檔尾狀態未知，拒絕再寫 (需要重啟重放)
	ErrBroken = errors.New("wal: broken by an earlier incomplete write")
)

// File WAL 需要的檔案操作，*os.File 即符合
type File interface {
	io.ReadWriteSeeker
	Sync() error
	Stat() (fs.FileInfo, error)
	Truncate(size int64) error
	Close() error
}

type WAL struct {
	file   File
	mu     sync.Mutex
	broken error
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, err
	}
	return &WAL{file: file}, nil
}

// NewWALFromFile 使用已開啟的檔案，寫入必須是 append 模式
func NewWALFromFile(file File) *WAL {
	return &WAL{file: file}
}

// Write 寫入一筆資料並刷入硬碟
//
// 回傳:
//
//	error: ErrSyncFailed 時無法確定這筆是否落地；其他錯誤代表重放時不會有這筆
func (w *WAL) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wal: marshal record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}
	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("wal: stat: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		// 把半筆資料截掉，後面的寫入才不會黏在一起
		if terr := w.file.Truncate(info.Size()); terr != nil {
			w.broken = terr
			return fmt.Errorf("%w: %v (truncate: %v)", ErrWriteIncomplete, err, terr)
		}
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}

// Sync 強制刷入硬碟
func (w *WAL) Sync() error {
	return w.file.Sync()
}

// Close 關閉檔案
func (w *WAL) Close() error {
	return w.file.Close()
}

// ReadAll 讀取所有資料
// callback 一次收到一筆 JSON，避免一次將所有資料載入記憶體
// 檔尾若是沒寫完的半筆資料 (當機造成) 會被截掉，之後的寫入才不會接在半筆後面
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// 沒有換行結尾代表最後一筆沒寫完
			if len(line) > 0 {
				return w.file.Truncate(offset)
			}
			return nil
		}
		if err != nil {
			return err
		}
		offset += int64(len(line))
		if len(line) <= 1 {
			continue
		}
		if !json.Valid(line) {
			return fmt.Errorf("wal: corrupt record: %q", line)
		}
		if err := callback(line); err != nil {
			return err
		}
	}
}

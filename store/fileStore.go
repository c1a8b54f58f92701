package store

import (
	"github.com/allan-simon/go-singleinstance"
	"github.com/chaintrail/go-chaintrail-sdk/symmetric_key"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const lockFileName = "lock"

// FileStore is a Store backed by a directory, one file per entry. Open
// creates the directory and takes a lock file, so two processes (or two
// FileStore instances) can never use the same directory at once. Entry names
// become file names: path separators, "." and ".." are rejected.
// To create it, instantiate a FileStore with a Dir, and optionally an
// EncryptionKey to encrypt entries at rest.
type FileStore struct {
	// Dir is the directory entries are stored in. Created by Open if needed.
	Dir string
	// EncryptionKey encrypts entries at rest when set. Entries written with a
	// key can only be read back with the same key.
	EncryptionKey *symmetric_key.SymKey
	// Logger is the zerolog instance to write logs to. Optional.
	Logger zerolog.Logger

	mutex  sync.Mutex
	lock   *os.File
	logger zerolog.Logger
}

func (f *FileStore) Open() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.lock != nil {
		return tracerr.Wrap(ErrorStoreAlreadyOpen)
	}

	err := os.MkdirAll(f.Dir, 0700)
	if err != nil {
		return tracerr.Wrap(err)
	}
	lockPath := filepath.Join(f.Dir, lockFileName)
	lock, err := singleinstance.CreateLockFile(lockPath)
	if err != nil {
		if (runtime.GOOS == "windows" && err.Error() == "remove "+lockPath+": The process cannot access the file because it is being used by another process.") ||
			err.Error() == "resource temporarily unavailable" {
			return tracerr.Wrap(ErrorStoreLocked)
		} else {
			return tracerr.Wrap(err)
		}
	}
	f.lock = lock
	f.logger = f.Logger.With().Str("component", "store").Logger()
	f.logger.Debug().Str("dir", f.Dir).Msg("Store opened")
	return nil
}

func (f *FileStore) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.lock == nil {
		return tracerr.Wrap(ErrorStoreClosed)
	}

	// release the directory lock
	err := f.lock.Close()
	if err != nil {
		return tracerr.Wrap(err)
	}
	f.lock = nil
	f.logger.Debug().Str("dir", f.Dir).Msg("Store closed")
	return nil
}

func (f *FileStore) Put(name string, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.lock == nil {
		return tracerr.Wrap(ErrorStoreClosed)
	}
	if !validEntryName(name) {
		return tracerr.Wrap(ErrorStoreInvalidEntryName.AddDetails(name))
	}

	payload := data
	if f.EncryptionKey != nil {
		encrypted, err := f.EncryptionKey.Encrypt(data)
		if err != nil {
			return tracerr.Wrap(err)
		}
		payload = encrypted
	}

	err := writeFileAtomic(filepath.Join(f.Dir, name), payload)
	if err != nil {
		return tracerr.Wrap(err)
	}
	f.logger.Debug().Str("entry", name).Int("bytes", len(data)).Msg("Entry written")
	return nil
}

func (f *FileStore) Get(name string) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.lock == nil {
		return nil, tracerr.Wrap(ErrorStoreClosed)
	}
	if !validEntryName(name) {
		return nil, tracerr.Wrap(ErrorStoreInvalidEntryName.AddDetails(name))
	}

	read, err := os.ReadFile(filepath.Join(f.Dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tracerr.Wrap(ErrorStoreEntryNotFound.AddDetails(name))
		}
		return nil, tracerr.Wrap(err)
	}
	if f.EncryptionKey != nil {
		decrypted, err := f.EncryptionKey.Decrypt(read)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		return decrypted, nil
	}
	return read, nil
}

func validEntryName(name string) bool {
	if name == "" || name == "." || name == ".." || name == lockFileName {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func writeFileAtomic(path string, data []byte) error {
	// datetime with milliseconds, dot stripped
	now := strings.Replace(time.Now().Format("20060102150405.000"), ".", "", 1)
	tempPath := path + "_temp_" + now

	// write in 2 steps for atomic write
	err := os.WriteFile(tempPath, data, 0600)
	if err != nil {
		return tracerr.Wrap(err)
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		return tracerr.Wrap(err)
	}

	return nil
}

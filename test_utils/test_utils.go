package test_utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

var (
	ErrorSyntheticTestError = utils.NewChainTrailError("SYNTHETIC_TEST_ERROR", "Synthetic test error")
)

// GetStorePath returns a path under test_output for a test store directory.
func GetStorePath(storeName string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", tracerr.Wrap(err)
	}

	storePath := filepath.Join(wd, "test_output", storeName)
	return storePath, nil
}

func GetCurrentPath() string {
	_, filename, _, _ := runtime.Caller(1)

	return filepath.Dir(filename)
}

var testDirsNames sync.Map

func GetTestName(t testing.TB) string {
	loadedValue, _ := testDirsNames.LoadOrStore(t.Name(), 0)
	value := loadedValue.(int)
	name := fmt.Sprintf("%s_%d", t.Name(), value)
	testDirsNames.Store(t.Name(), value+1)
	return name
}

func GetRandomString(length int) string {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		panic("Error generating random in GetRandomString:" + err.Error())
	}
	str := hex.EncodeToString(b)
	return str[0:length]
}

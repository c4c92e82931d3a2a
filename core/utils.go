package core

import (
	"crypto/sha256"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
)

func NewLogger(prefix string) *log.Logger {
	// 2024/06/30 00:56:06 [prefix] message
	return log.New(os.Stdout, color.HiGreenString(fmt.Sprintf("[%s] ", prefix)), log.Ldate|log.Ltime|log.Lmsgprefix)
}

func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

package logger

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu          sync.Mutex
	InfoLogger  *log.Logger
	ErrorLogger *log.Logger
	logFile     *os.File
)

// Init opens the log file and mirrors the standard logger into it, so log.Printf
// output lands both on stderr and in the file.
func Init(logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	logFile = f

	out := io.MultiWriter(os.Stderr, f)
	log.SetOutput(out)
	InfoLogger = log.New(out, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLogger = log.New(out, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	return nil
}

// RotateLog truncates the log file and starts writing to it afresh.
func RotateLog(logFilePath string) error {
	mu.Lock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	mu.Unlock()

	if err := os.Truncate(logFilePath, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return Init(logFilePath)
}

// Cleanup closes the log file and restores stderr logging.
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	log.SetOutput(os.Stderr)
	InfoLogger = nil
	ErrorLogger = nil
}

// Info logs an informational message. Before Init it goes to the standard logger.
func Info(v ...interface{}) {
	mu.Lock()
	l := InfoLogger
	mu.Unlock()
	if l == nil {
		log.Println(append([]interface{}{"INFO:"}, v...)...)
		return
	}
	l.Println(v...)
}

// Error logs an error message. Before Init it goes to the standard logger.
func Error(v ...interface{}) {
	mu.Lock()
	l := ErrorLogger
	mu.Unlock()
	if l == nil {
		log.Println(append([]interface{}{"ERROR:"}, v...)...)
		return
	}
	l.Println(v...)
}

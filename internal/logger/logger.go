// Package logger предоставляет логирование с префиксом сервиса и асинхронной
// записью, чтобы не блокировать горячий путь fanout. Поддерживается
// логирование времени выполнения функций.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const asyncBufferSize = 8192

var (
	prefix   string
	logLevel = levelInfo
	ch       chan string
	once     sync.Once
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

func initLevel() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		logLevel = levelDebug
	default:
		logLevel = levelInfo
	}
}

func initWorker() {
	initLevel()
	ch = make(chan string, asyncBufferSize)
	go func() {
		for msg := range ch {
			log.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(initWorker)
	select {
	case ch <- msg:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

// SetPrefix задаёт префикс для всех последующих логов (например "api").
func SetPrefix(p string) {
	prefix = p
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Info writes to log with the service prefix (asynchronously).
func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

// Infof formats and writes with the service prefix (asynchronously).
func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Error writes an error with the service prefix (asynchronously).
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

// Errorf formats an error and writes it with the service prefix (asynchronously).
func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// Debugf writes only when LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	if logLevel == levelDebug {
		enqueue(tag() + fmt.Sprintf(format, v...))
	}
}

// LogDuration logs the function name and elapsed milliseconds. At
// LOG_LEVEL=info only calls slower than 100ms are logged; at debug, all.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if logLevel == levelDebug || elapsed >= 100*time.Millisecond {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration returns a function for use in defer:
// defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}

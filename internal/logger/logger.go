package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Log — общий логгер процесса. До вызова Init равен nil, поэтому код,
// работающий и в тестах, проверяет его перед использованием.
var Log *logrus.Logger

// Init настраивает структурированный JSON логгер с заданным уровнем.
// Неизвестный уровень трактуется как info.
func Init(level string) {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	Log = l
}

// SetTextFormatter переключает вывод на читаемый текстовый формат
// для локальной разработки.
func SetTextFormatter() {
	if Log == nil {
		return
	}
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
}

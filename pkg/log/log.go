package log

import (
	logrus "github.com/sirupsen/logrus"
)

// Infof logs the general operational entries about what's going on inside the engine
func Infof(msg string, val ...interface{}) {
	logrus.WithFields(logrus.Fields{}).Infof(msg, val...)
}

// Info logs the general operational entries about what's going on inside the engine
func Info(msg string) {
	logrus.WithFields(logrus.Fields{}).Info(msg)
}

// InfoWithValues logs the general operational entries along with extra key value pairs
func InfoWithValues(msg string, val map[string]interface{}) {
	logrus.WithFields(val).Info(msg)
}

// ErrorWithValues logs the error entries along with extra key value pairs
func ErrorWithValues(msg string, val map[string]interface{}) {
	logrus.WithFields(val).Error(msg)
}

// Warn logs the non-critical entries that deserve eyes
func Warn(msg string) {
	logrus.WithFields(logrus.Fields{}).Warn(msg)
}

// Warnf logs the non-critical entries that deserve eyes
func Warnf(msg string, val ...interface{}) {
	logrus.WithFields(logrus.Fields{}).Warnf(msg, val...)
}

// Error is used for errors that should definitely be noted
func Error(msg string) {
	logrus.WithFields(logrus.Fields{}).Error(msg)
}

// Errorf is used for errors that should definitely be noted
func Errorf(msg string, err ...interface{}) {
	logrus.WithFields(logrus.Fields{}).Errorf(msg, err...)
}

// Fatalf logs first and then calls `logger.Exit(1)`
func Fatalf(msg string, err ...interface{}) {
	logrus.WithFields(logrus.Fields{}).Fatalf(msg, err...)
}

// Fatal logs first and then calls `logger.Exit(1)`
func Fatal(msg string) {
	logrus.WithFields(logrus.Fields{}).Fatal(msg)
}

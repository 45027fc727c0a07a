package utils

import "log"

// LogError logs an error with its call-site context if it's not nil
func LogError(err error, context string) {
	if err != nil {
		log.Printf("Error [%s]: %v", context, err)
	}
}

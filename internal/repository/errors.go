package repository

import "errors"

var (
	// ErrNotFound стандартная ошибка для случаев, когда запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidData неверные данные для операции с хранилищем
	ErrInvalidData = errors.New("invalid data")
)

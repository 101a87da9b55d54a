package syncer

import "fmt"

type CategoryNotEmptyError struct {
	CategoryID int64
	Items      int
}

func (e CategoryNotEmptyError) Error() string {
	return fmt.Sprintf("Cannot delete category: it still has %d item(s).", e.Items)
}

type MissingCategoryError struct{}

func (e MissingCategoryError) Error() string {
	return "Choose a category (or create one) before adding the item."
}

type NotFoundError struct {
	Kind string
	ID   int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Kind, e.ID)
}

type PendingError struct {
	Kind string
}

func (e PendingError) Error() string {
	return fmt.Sprintf("%s is still being saved.", e.Kind)
}

type NoListError struct{}

func (e NoListError) Error() string { return "No list selected." }

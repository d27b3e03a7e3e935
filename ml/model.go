package ml

import (
	"fmt"
	"strings"
)

// ModelKind selects the classifier a session targets.
type ModelKind string

const (
	Iris ModelKind = "iris"
	Wine ModelKind = "wine"
)

// Kinds lists the supported classifiers in display order.
var Kinds = []ModelKind{Iris, Wine}

// ParseModelKind accepts either the path segment ("iris") or the display title ("Iris Flower").
func ParseModelKind(s string) (ModelKind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if v == string(k) || v == strings.ToLower(k.Title()) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported model %q", s)
}

// Path is the backend path segment, e.g. "/iris/predict".
func (k ModelKind) Path() string {
	return string(k)
}

func (k ModelKind) Title() string {
	switch k {
	case Iris:
		return "Iris Flower"
	case Wine:
		return "Wine Classification"
	default:
		return string(k)
	}
}

// ClassNameField is the model specific response field holding the label.
func (k ModelKind) ClassNameField() string {
	if k == Wine {
		return "wine_class"
	}
	return "species"
}

// InputMethod is how the operator supplies the feature vector.
type InputMethod string

const (
	Manual       InputMethod = "manual"
	UploadedFile InputMethod = "upload"
)

func ParseInputMethod(s string) (InputMethod, error) {
	switch InputMethod(strings.ToLower(strings.TrimSpace(s))) {
	case Manual:
		return Manual, nil
	case UploadedFile:
		return UploadedFile, nil
	default:
		return "", fmt.Errorf("unsupported input method %q", s)
	}
}

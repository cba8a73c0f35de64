// Package validate checks user supplied movie forms and usernames.
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/movies"
)

var yearPattern = regexp.MustCompile(`^\d{4}([-–]\d{4})?$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = val.RegisterValidation("year", func(fl validator.FieldLevel) bool {
		return yearPattern.MatchString(fl.Field().String())
	})
	return val
}

// Errors maps a form field to the message shown next to it.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// MovieForm is the editor's input. An empty ID means a new movie.
type MovieForm struct {
	ID       string `json:"id"`
	Title    string `json:"title" validate:"required,min=3"`
	Year     string `json:"year" validate:"required,year"`
	Runtime  string `json:"runtime" validate:"required"`
	Genre    string `json:"genre" validate:"required,min=3"`
	Director string `json:"director" validate:"required,min=3"`
	Poster   string `json:"poster"`
}

// Trimmed returns the form with surrounding whitespace removed.
func (f MovieForm) Trimmed() MovieForm {
	return MovieForm{
		ID:       strings.TrimSpace(f.ID),
		Title:    strings.TrimSpace(f.Title),
		Year:     strings.TrimSpace(f.Year),
		Runtime:  strings.TrimSpace(f.Runtime),
		Genre:    strings.TrimSpace(f.Genre),
		Director: strings.TrimSpace(f.Director),
		Poster:   strings.TrimSpace(f.Poster),
	}
}

// Movie validates a trimmed form against the field rules and against the
// titles already listed, ignoring the movie being edited.
func Movie(form MovieForm, existing []domain.Movie) error {
	errs := structErrors(form, movieMessage)
	if _, bad := errs["title"]; !bad && !TitleUnique(form.Title, existing, form.ID) {
		if errs == nil {
			errs = Errors{}
		}
		errs["title"] = "Movie already exists"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// TitleUnique reports whether no listed movie other than currentID has the
// same normalized title.
func TitleUnique(title string, existing []domain.Movie, currentID string) bool {
	want := strings.ToLower(movies.FormatTitle(title))
	for _, m := range existing {
		if m.ID == currentID {
			continue
		}
		if strings.ToLower(movies.FormatTitle(m.Title)) == want {
			return false
		}
	}
	return true
}

type usernameInput struct {
	Username string `json:"username" validate:"required,min=3"`
}

func Username(name string) error {
	errs := structErrors(usernameInput{Username: strings.TrimSpace(name)}, usernameMessage)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func structErrors(s any, message func(validator.FieldError) string) Errors {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return Errors{"_error": err.Error()}
	}
	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func movieMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "min":
		return fmt.Sprintf("Min %s chars", fe.Param())
	case "year":
		return "Format must be YYYY or YYYY-YYYY"
	default:
		return fe.Error()
	}
}

func usernameMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Username is required"
	case "min":
		return fmt.Sprintf("Min %s characters", fe.Param())
	default:
		return fe.Error()
	}
}

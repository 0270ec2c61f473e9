package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/pkg/cerr"
	"github.com/kazz187/studyguild/pkg/panicerr"
)

// ErrTaskNotSaved marks extraction results the store refused to persist.
var ErrTaskNotSaved = errors.New("task not saved")

// Result is the outcome of one tool invocation: exactly one of Value and Err
// is meaningful.
type Result struct {
	Value any
	Err   error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

type Tool interface {
	Name() string
	Declaration() llm.FunctionDeclaration
	Invoke(ctx context.Context, args map[string]any) Result
	// check verifies the declaration against the argument struct.
	check() error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// typedTool decodes the model's argument map into A before calling handler.
type typedTool[A any] struct {
	decl    llm.FunctionDeclaration
	handler func(ctx context.Context, args A) (any, error)
}

func newTool[A any](decl llm.FunctionDeclaration, handler func(ctx context.Context, args A) (any, error)) Tool {
	return &typedTool[A]{decl: decl, handler: handler}
}

func (t *typedTool[A]) Name() string {
	return t.decl.Name
}

func (t *typedTool[A]) Declaration() llm.FunctionDeclaration {
	return t.decl
}

func (t *typedTool[A]) Invoke(ctx context.Context, raw map[string]any) Result {
	args, err := decodeArgs[A](raw)
	if err != nil {
		return Result{Err: cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("invalid arguments for %s", t.decl.Name), err)}
	}
	v, err := panicerr.SafeValue(func() (any, error) {
		return t.handler(ctx, args)
	})
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

func decodeArgs[A any](raw map[string]any) (A, error) {
	var args A
	if raw == nil {
		raw = map[string]any{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return args, fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&args); err != nil {
		return args, fmt.Errorf("failed to decode arguments: %w", err)
	}
	if reflect.TypeOf(args).Kind() == reflect.Struct {
		if err := validate.Struct(args); err != nil {
			return args, err
		}
	}
	return args, nil
}

func (t *typedTool[A]) check() error {
	d := t.decl
	if d.Description == "" {
		return fmt.Errorf("tool %s: missing description", d.Name)
	}
	fields := jsonFields(reflect.TypeOf((*A)(nil)).Elem())
	if d.Parameters == nil {
		if len(fields) > 0 {
			return fmt.Errorf("tool %s: arguments %v are not declared", d.Name, fields)
		}
		return nil
	}
	if d.Parameters.Type != llm.TypeObject {
		return fmt.Errorf("tool %s: parameters must be an object", d.Name)
	}
	for _, req := range d.Parameters.Required {
		if _, ok := d.Parameters.Properties[req]; !ok {
			return fmt.Errorf("tool %s: required parameter %q is not declared", d.Name, req)
		}
	}
	declared := make(map[string]bool, len(d.Parameters.Properties))
	for name := range d.Parameters.Properties {
		declared[name] = true
		if !contains(fields, name) {
			return fmt.Errorf("tool %s: parameter %q has no argument field", d.Name, name)
		}
	}
	for _, f := range fields {
		if !declared[f] {
			return fmt.Errorf("tool %s: argument %q is not declared", d.Name, f)
		}
	}
	return nil
}

func jsonFields(t reflect.Type) []string {
	if t.Kind() != reflect.Struct {
		return nil
	}
	var names []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TaskID accepts both JSON numbers and numeric strings.
type TaskID int64

func (id *TaskID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("task_id must be a number: %w", err)
	}
	if f != float64(int64(f)) {
		return fmt.Errorf("task_id must be an integer, got %s", s)
	}
	*id = TaskID(f)
	return nil
}

// Details accepts either a JSON string or any JSON value, kept as text.
type Details string

func (d *Details) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Details(s)
		return nil
	}
	if string(data) == "null" {
		*d = ""
		return nil
	}
	*d = Details(data)
	return nil
}

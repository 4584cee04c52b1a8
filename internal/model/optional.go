package model

import "encoding/json"

// Optional はPATCHリクエストのフィールドについて「未指定」「null」「値あり」を区別する。
type Optional[T any] struct {
	Set   bool // JSONにキーが存在した
	Null  bool // 値がnullだった
	Value T
}

// Some は値ありのOptionalを返す。
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null は明示的なnullのOptionalを返す。
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// UnmarshalJSON はキーが存在する場合にのみ呼ばれるため、呼ばれた時点でSetとする。
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// Ptr は値ありの場合に値へのポインタを、それ以外はnilを返す。
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

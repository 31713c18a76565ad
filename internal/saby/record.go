package saby

import (
	"encoding/json"
)

// Field type tags from the CRM's schema vocabulary.  The protocol is not
// self-describing: every value must be sent with one of these tags alongside it.
const (
	TypeString  = "Строка"
	TypeInteger = "Число целое"
	TypeRecord  = "Запись"
	TypeJSON    = "JSON-объект"
)

// Record is the paired data/schema structure the CRM requires for every
// structured field.  The two maps must always carry identical key sets - a key
// present in one but not the other is rejected by the CRM.  All mutators write
// both maps in one step so the pairing cannot drift.
type Record struct {
	data   map[string]interface{}
	schema map[string]interface{}
}

func NewRecord() *Record {
	return &Record{
		data:   make(map[string]interface{}),
		schema: make(map[string]interface{}),
	}
}

func (r *Record) set(name string, value interface{}, tag interface{}) {
	r.data[name] = value
	r.schema[name] = tag
}

func (r *Record) SetString(name string, value string) {
	r.set(name, value, TypeString)
}

func (r *Record) SetInt(name string, value int) {
	r.set(name, value, TypeInteger)
}

// SetRecord nests another data/schema pair under name.
func (r *Record) SetRecord(name string, value *Record) {
	r.set(name, value, TypeRecord)
}

func (r *Record) SetIntArray(name string, values []int) {
	r.set(name, values, map[string]string{"Массив": TypeInteger})
}

// SetJSON attaches an opaque value without a per-key schema.
func (r *Record) SetJSON(name string, value interface{}) {
	r.set(name, value, TypeJSON)
}

// Data exposes the underlying data map.  Callers must not mutate it.
func (r *Record) Data() map[string]interface{} {
	return r.data
}

// Schema exposes the underlying schema map.  Callers must not mutate it.
func (r *Record) Schema() map[string]interface{} {
	return r.schema
}

func (r *Record) Len() int {
	return len(r.data)
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data   map[string]interface{} `json:"d"`
		Schema map[string]interface{} `json:"s"`
	}{
		Data:   r.data,
		Schema: r.schema,
	})
}

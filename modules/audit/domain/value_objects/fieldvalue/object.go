package fieldvalue

// Object is a string-keyed map that remembers insertion order.
// A nil *Object behaves as an empty object for reads.
type Object struct {
	keys   []string
	values map[string]Value
}

func NewObject() *Object {
	return &Object{values: map[string]Value{}}
}

// Set stores v under key. Re-setting an existing key keeps its original position.
func (o *Object) Set(key string, v Value) *Object {
	if o.values == nil {
		o.values = map[string]Value{}
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Lookup returns the value under key, or null when absent.
func (o *Object) Lookup(key string) Value {
	v, _ := o.Get(key)
	return v
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

func (o *Object) Delete(key string) {
	if o == nil {
		return
	}
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	cp := make([]string, len(o.keys))
	copy(cp, o.keys)
	return cp
}

// Range calls fn for each entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy; nested values are immutable so sharing them is safe.
func (o *Object) Clone() *Object {
	out := NewObject()
	o.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Merge returns a copy of o with every entry of patch applied on top.
func (o *Object) Merge(patch *Object) *Object {
	out := o.Clone()
	patch.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// ObjectFromMap builds an object from a plain map; keys are inserted sorted.
func ObjectFromMap(m map[string]any) (*Object, error) {
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, _ := v.Object()
	return obj, nil
}

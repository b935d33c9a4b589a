package store

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func encode(doc any) (bson.Raw, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bson.Raw(data), nil
}

// withID returns doc as a BSON document with a non-empty _id, generating a
// UUID when doc has none.
func withID(doc any) (bson.D, string, error) {
	raw, err := encode(doc)
	if err != nil {
		return nil, "", err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, "", fmt.Errorf("decode document: %w", err)
	}

	for i, e := range d {
		if e.Key != FieldID {
			continue
		}
		switch v := e.Value.(type) {
		case string:
			if v != "" {
				return d, v, nil
			}
		case primitive.ObjectID:
			return d, v.Hex(), nil
		default:
			return d, fmt.Sprint(v), nil
		}
		id := uuid.NewString()
		d[i].Value = id
		return d, id, nil
	}

	id := uuid.NewString()
	return append(bson.D{{Key: FieldID, Value: id}}, d...), id, nil
}

// keyed returns doc with _id forced to key.
func keyed(doc any, key string) (bson.Raw, error) {
	raw, err := encode(doc)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	d = slices.DeleteFunc(d, func(e bson.E) bool { return e.Key == FieldID })
	return encode(append(bson.D{{Key: FieldID, Value: key}}, d...))
}

// fields returns the top-level fields of doc other than _id.
func fields(doc any) (bson.D, error) {
	raw, err := encode(doc)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return slices.DeleteFunc(d, func(e bson.E) bool { return e.Key == FieldID }), nil
}

// merge overlays the top-level fields of update onto existing.
func merge(existing, update bson.Raw) (bson.Raw, error) {
	var base, over bson.D
	if err := bson.Unmarshal(existing, &base); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(update, &over); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	for _, e := range over {
		idx := slices.IndexFunc(base, func(b bson.E) bool { return b.Key == e.Key })
		if idx >= 0 {
			base[idx].Value = e.Value
			continue
		}
		base = append(base, e)
	}
	return encode(base)
}

// decodeList decodes an ordered set of documents into out, a pointer to a
// slice of records.
func decodeList(docs []bson.Raw, out any) error {
	arr := make(bson.A, len(docs))
	for i, d := range docs {
		arr[i] = d
	}
	data, err := bson.Marshal(bson.D{{Key: "v", Value: arr}})
	if err != nil {
		return fmt.Errorf("encode list: %w", err)
	}
	if err := bson.Raw(data).Lookup("v").Unmarshal(out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func docID(raw bson.Raw) string {
	v, err := raw.LookupErr(FieldID)
	if err != nil {
		return ""
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return v.String()
}

func registeredAt(raw bson.Raw) time.Time {
	v, err := raw.LookupErr(FieldRegisteredAt)
	if err != nil {
		return time.Time{}
	}
	if dt, ok := v.DateTimeOK(); ok {
		return time.UnixMilli(dt)
	}
	return time.Time{}
}

// sortNewestFirst orders documents by registered_at descending, then by id.
func sortNewestFirst(docs []bson.Raw) {
	slices.SortStableFunc(docs, func(a, b bson.Raw) int {
		if c := registeredAt(b).Compare(registeredAt(a)); c != 0 {
			return c
		}
		return bytes.Compare([]byte(docID(a)), []byte(docID(b)))
	})
}

func fieldEquals(raw bson.Raw, field string, value any) bool {
	got, err := raw.LookupErr(field)
	if err != nil {
		return false
	}
	t, data, err := bson.MarshalValue(value)
	if err != nil {
		return false
	}
	return got.Type == t && bytes.Equal(got.Value, data)
}

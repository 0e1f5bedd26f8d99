package rules

import (
	"encoding/binary"
	"fmt"
)

// Key is the rule-table key as the kernel program sees it. Addresses
// and ports are in network byte order because the kernel compares them
// against raw packet headers. The trailing byte pads the struct to its
// C alignment.
type Key [8]byte

// Value is the rule-table value: rewrite destination, network byte
// order, padded to 8 bytes.
type Value [8]byte

// EncodeKey builds the map key for a rule.
func EncodeKey(r Rule) (Key, error) {
	addr, err := parseIPv4(r.BindAddr)
	if err != nil {
		return Key{}, fmt.Errorf("bind_addr: %w", err)
	}
	proto, err := protocolNumber(r.Protocol)
	if err != nil {
		return Key{}, err
	}

	var k Key
	a4 := addr.As4()
	copy(k[0:4], a4[:])
	binary.BigEndian.PutUint16(k[4:6], r.BindPort)
	k[6] = proto
	return k, nil
}

// EncodeValue builds the map value for a rule.
func EncodeValue(r Rule) (Value, error) {
	addr, err := parseIPv4(r.DestAddr)
	if err != nil {
		return Value{}, fmt.Errorf("dest_addr: %w", err)
	}

	var v Value
	a4 := addr.As4()
	copy(v[0:4], a4[:])
	binary.BigEndian.PutUint16(v[4:6], r.DestPort)
	return v, nil
}

// Op is one rule-table mutation.
type Op struct {
	Key    Key
	Value  Value
	Delete bool
}

// Plan diffs two rule sets and returns the mutations that transform
// the kernel table from prev to next: deletions for keys no longer
// present, upserts for new or changed entries. Unchanged entries
// produce no op.
func Plan(prev, next []Rule) ([]Op, error) {
	prevEntries, err := index(prev)
	if err != nil {
		return nil, err
	}
	nextEntries, err := index(next)
	if err != nil {
		return nil, err
	}

	var ops []Op
	for k := range prevEntries {
		if _, ok := nextEntries[k]; !ok {
			ops = append(ops, Op{Key: k, Delete: true})
		}
	}
	for k, v := range nextEntries {
		if oldV, ok := prevEntries[k]; ok && oldV == v {
			continue
		}
		ops = append(ops, Op{Key: k, Value: v})
	}
	return ops, nil
}

func index(set []Rule) (map[Key]Value, error) {
	m := make(map[Key]Value, len(set))
	for i, r := range set {
		k, err := EncodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		v, err := EncodeValue(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		m[k] = v
	}
	return m, nil
}

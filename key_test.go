package requery

import (
	"errors"
	"testing"
)

func TestKeyEqualityAcrossConstruction(t *testing.T) {
	a, err := NewKey("pokemon", 1)
	if err != nil {
		t.Fatalf("NewKey() returned error: %v", err)
	}
	b, err := NewKey("pokemon", 1)
	if err != nil {
		t.Fatalf("NewKey() returned error: %v", err)
	}
	if a != b {
		t.Errorf("Expected equal keys, got %q and %q", a, b)
	}
	if a.Hash() != b.Hash() {
		t.Error("Equal keys must hash equally")
	}
}

func TestKeyPartTypesDoNotCollide(t *testing.T) {
	asString := MustKey("users", "1")
	asInt := MustKey("users", 1)
	asUint := MustKey("users", uint(1))
	asFloat := MustKey("users", 1.0)
	asBool := MustKey("users", true)

	keys := []Key{asString, asInt, asUint, asFloat, asBool}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[i] == keys[j] {
				t.Errorf("Keys %d and %d collide: %q", i, j, keys[i])
			}
		}
	}
}

func TestKeyOrderMatters(t *testing.T) {
	if MustKey("a", "b") == MustKey("b", "a") {
		t.Error("Part order must be significant")
	}
}

func TestKeySeparatorInjection(t *testing.T) {
	// A part containing the separator must not collide with two parts.
	joined := MustKey("a/b")
	split := MustKey("a", "b")
	if joined == split {
		t.Errorf("Separator in a string part collides: %q", joined)
	}
}

func TestNewKeyRejectsEmptyParts(t *testing.T) {
	_, err := NewKey()
	if err == nil {
		t.Fatal("Expected error for empty part list")
	}
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Type != ErrorTypeConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestNewKeyRejectsUnsupportedTypes(t *testing.T) {
	type opaque struct{ x int }
	_, err := NewKey("prefix", opaque{1})
	if err == nil {
		t.Fatal("Expected error for struct key part")
	}
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Type != ErrorTypeConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestMustKeyPanicsOnInvalidParts(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MustKey to panic on invalid parts")
		}
	}()
	MustKey()
}

func TestKeyFromStringRoundTrip(t *testing.T) {
	original := MustKey("pokemon", 1, true)
	restored, err := KeyFromString(original.String())
	if err != nil {
		t.Fatalf("KeyFromString() returned error: %v", err)
	}
	if restored != original {
		t.Errorf("Round trip changed key: %q -> %q", original, restored)
	}
}

func TestKeyFromStringRejectsEmpty(t *testing.T) {
	if _, err := KeyFromString(""); err == nil {
		t.Error("Expected error for empty canonical string")
	}
}

func TestKeyIsZero(t *testing.T) {
	var zero Key
	if !zero.IsZero() {
		t.Error("Zero Key must report IsZero")
	}
	if MustKey("x").IsZero() {
		t.Error("Constructed key must not report IsZero")
	}
}

func TestKeyHashDiffers(t *testing.T) {
	if MustKey("a").Hash() == MustKey("b").Hash() {
		t.Error("Expected different hashes for different keys")
	}
}

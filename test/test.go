package test

import (
	"bytes"
	"context"
	"testing"

	"github.com/condcache/condcache"
)

// Cache exercises a condcache.Cache implementation.
func Cache(t *testing.T, cache condcache.Cache) {
	ctx := context.Background()
	key := "testKey"
	_, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if ok {
		t.Fatal("retrieved key before adding it")
	}

	val := []byte("some bytes")
	if err := cache.Set(ctx, key, val); err != nil {
		t.Fatalf("error setting key: %v", err)
	}

	retVal, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if !ok {
		t.Fatal("could not retrieve an element we just added")
	}
	if !bytes.Equal(retVal, val) {
		t.Fatal("retrieved a different value than what we put in")
	}

	newVal := []byte("some newer bytes")
	if err := cache.Set(ctx, key, newVal); err != nil {
		t.Fatalf("error overwriting key: %v", err)
	}

	retVal, ok, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if !ok {
		t.Fatal("could not retrieve an element we just overwrote")
	}
	if !bytes.Equal(retVal, newVal) {
		t.Fatal("retrieved the old value after overwriting")
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("error deleting key: %v", err)
	}

	_, ok, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if ok {
		t.Fatal("deleted key still present")
	}
}

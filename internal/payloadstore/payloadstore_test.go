package payloadstore

import (
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakeClient struct {
	putBucket string
	putKey    string
	putData   []byte
}

func (f *fakeClient) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.putBucket = bucket
	f.putKey = key
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.putData = data
	return minio.UploadInfo{Bucket: bucket, Key: key}, nil
}

func (f *fakeClient) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, io.EOF
}

func TestObjectKeyShardsByHashPrefix(t *testing.T) {
	got := ObjectKey("ab12cd")
	want := "payloads/ab/ab12cd.json"
	if got != want {
		t.Fatalf("object key = %q, want %q", got, want)
	}
}

func TestShouldOffload(t *testing.T) {
	store := newOver(&fakeClient{}, "run-payloads", 10)
	if store.ShouldOffload(10) {
		t.Fatalf("size at threshold must stay inline")
	}
	if !store.ShouldOffload(11) {
		t.Fatalf("size past threshold must offload")
	}
	var disabled *Store
	if disabled.ShouldOffload(1 << 20) {
		t.Fatalf("nil store must never offload")
	}
}

func TestPutUsesContentAddressedKey(t *testing.T) {
	client := &fakeClient{}
	store := newOver(client, "run-payloads", 10)
	key, err := store.Put(context.Background(), "deadbeef", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "payloads/de/deadbeef.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if client.putBucket != "run-payloads" || client.putKey != key {
		t.Fatalf("unexpected upload target %s/%s", client.putBucket, client.putKey)
	}
	if string(client.putData) != `{"a":1}` {
		t.Fatalf("unexpected upload body %q", client.putData)
	}
}

func TestPutRequiresHash(t *testing.T) {
	store := newOver(&fakeClient{}, "run-payloads", 10)
	if _, err := store.Put(context.Background(), " ", nil); err == nil {
		t.Fatalf("expected error for empty hash")
	}
}

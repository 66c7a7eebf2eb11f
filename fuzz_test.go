// Fuzz test comparing the archive against an in-memory reference model.
// A byte stream from the fuzzer is decoded into a sequence of
// publish/update/delete/fetch operations on random names drawn from a
// small fixed pool, so that collisions and re-use are exercised rather
// than always hitting distinct fresh keys.
//
// Failures mean: the archive and the reference model disagree about
// which names exist or what they contain, or Verify rejected an
// archive built entirely through the public API.
package archive

import (
	"bytes"
	"testing"
)

func FuzzArchiveMatchesModel(f *testing.F) {
	f.Add([]byte{0x00, 0x01, 0x02, 0x03})
	f.Add([]byte{0xFF, 0x02, 0x01, 0xAA, 0x00})
	f.Add(bytes.Repeat([]byte{0x01, 0x00}, 50))

	f.Fuzz(func(t *testing.T, ops []byte) {
		if len(ops) == 0 {
			return
		}

		a := openTestArchive(t)
		model := make(map[string][]byte)

		const nameCount = 6
		nameOf := func(b byte) string {
			return objName(int(b) % nameCount)
		}

		for i := 0; i+2 < len(ops); i += 3 {
			op := ops[i] % 4
			name := nameOf(ops[i+1])
			payloadLen := int(ops[i+2] % 32)
			payload := make([]byte, payloadLen)
			for j := range payload {
				payload[j] = byte(i + j)
			}
			meta := meta8(ops[i+2])

			switch op {
			case 0: // Publish
				err := a.Publish(name, meta, payload)
				_, exists := model[name]
				if exists {
					if err != ErrAlreadyExists {
						t.Fatalf("Publish(%s) on existing name: got %v, want ErrAlreadyExists", name, err)
					}
				} else {
					if err != nil {
						t.Fatalf("Publish(%s): %v", name, err)
					}
					model[name] = payload
				}

			case 1: // Update
				err := a.Update(name, meta, payload, nil)
				_, exists := model[name]
				if exists {
					if err != nil {
						t.Fatalf("Update(%s): %v", name, err)
					}
					model[name] = payload
				} else if err != ErrNotFound {
					t.Fatalf("Update(%s) on missing name: got %v, want ErrNotFound", name, err)
				}

			case 2: // Delete
				err := a.Delete(name, nil)
				_, exists := model[name]
				if exists {
					if err != nil {
						t.Fatalf("Delete(%s): %v", name, err)
					}
					delete(model, name)
				} else if err != ErrNotFound {
					t.Fatalf("Delete(%s) on missing name: got %v, want ErrNotFound", name, err)
				}

			case 3: // Fetch
				_, data, err := a.Fetch(name)
				want, exists := model[name]
				if exists {
					if err != nil {
						t.Fatalf("Fetch(%s): %v", name, err)
					}
					if !bytes.Equal(data, want) {
						t.Fatalf("Fetch(%s) = %v, want %v", name, data, want)
					}
				} else if err != ErrNotFound {
					t.Fatalf("Fetch(%s) on missing name: got %v, want ErrNotFound", name, err)
				}
			}
		}

		for name, want := range model {
			_, data, err := a.Fetch(name)
			if err != nil {
				t.Fatalf("final Fetch(%s): %v", name, err)
			}
			if !bytes.Equal(data, want) {
				t.Fatalf("final Fetch(%s) = %v, want %v", name, data, want)
			}
		}

		if err := a.Verify(); err != nil {
			t.Fatalf("Verify: %v", err)
		}
	})
}

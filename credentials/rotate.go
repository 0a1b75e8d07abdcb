package credentials

import (
	"context"
	"log/slog"

	"github.com/hatchsec/credguard/security"
)

// RotateUserKeys re-encrypts a user's stored credential fields from
// oldKey to newKey, writing the rotated records back through the raw
// store. Must be called on the unwrapped store: the interceptor would
// decrypt the blobs before this pass could see them.
//
// A field that fails to rotate keeps its old blob and is counted as
// failed; the pass continues. The active cipher key is not touched.
// Returns the number of fields rotated and the number that failed.
func RotateUserKeys(ctx context.Context, store Store, userID string, oldKey, newKey []byte, logger *slog.Logger, auditor *security.Auditor) (rotated, failed int, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds, err := store.ListByUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	for _, cred := range creds {
		changed := false
		for _, field := range encryptedFields {
			blob := field.get(cred)
			if blob == "" || !security.IsLikelyEncrypted(blob) {
				continue
			}

			newBlob, rotateErr := security.Rotate(blob, oldKey, newKey)
			if rotateErr != nil {
				failed++
				logger.Error("Failed to rotate credential field",
					"credential_id", cred.ID,
					"field", field.name,
					"error", rotateErr)
				continue
			}

			field.set(cred, newBlob)
			rotated++
			changed = true
		}

		if !changed {
			continue
		}

		if _, updateErr := store.Update(ctx, cred); updateErr != nil {
			return rotated, failed, updateErr
		}
	}

	auditor.LogKeyRotation(rotated, failed)
	return rotated, failed, nil
}

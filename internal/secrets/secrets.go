// Package secrets resolves indirect secret references at process start.
//
// Config values may be literals, "ssm:/parameter/name" references fetched
// (with decryption) from SSM Parameter Store, or "kms:<base64>" envelope
// blobs decrypted through KMS. Resolution failures are fatal: the server
// must not come up with a missing or malformed secret.
package secrets

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/meridianhealth/patient-portal/internal/xerrors"
)

// SSMAPI is the slice of the SSM client we use, held as an interface so
// tests can stub it.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// KMSAPI is the slice of the KMS client we use.
type KMSAPI interface {
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type Resolver struct {
	ssm SSMAPI
	kms KMSAPI
}

func NewResolver(ssmClient SSMAPI, kmsClient KMSAPI) *Resolver {
	return &Resolver{ssm: ssmClient, kms: kmsClient}
}

// Resolve turns a config value into its secret material. Literal values pass
// through unchanged.
func (r *Resolver) Resolve(ctx context.Context, v string) (string, error) {
	switch {
	case strings.HasPrefix(v, "ssm:"):
		return r.fromSSM(ctx, strings.TrimPrefix(v, "ssm:"))
	case strings.HasPrefix(v, "kms:"):
		return r.fromKMS(ctx, strings.TrimPrefix(v, "kms:"))
	default:
		return v, nil
	}
}

func (r *Resolver) fromSSM(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("empty ssm parameter name")
	}
	if r.ssm == nil {
		return "", xerrors.New("ssm reference configured but no ssm client available")
	}
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "fetching ssm parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("ssm parameter %s has no value", name)
	}
	return *out.Parameter.Value, nil
}

func (r *Resolver) fromKMS(ctx context.Context, blob string) (string, error) {
	if r.kms == nil {
		return "", xerrors.New("kms reference configured but no kms client available")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", xerrors.Wrap(err, "decoding kms ciphertext blob")
	}
	out, err := r.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: ciphertext})
	if err != nil {
		return "", xerrors.Wrap(err, "kms decrypt")
	}
	if len(out.Plaintext) == 0 {
		return "", xerrors.New("kms decrypt returned empty plaintext")
	}
	return string(out.Plaintext), nil
}

package mapclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"github.com/google/trillian"

	"github.com/netsec-ethz/vmapclient/pkg/logverifier"
)

// VerifiableLog is a read only view of one of the logs managed by a map: the mutation log or
// the tree head log. The map owns both; this type only derives paths from the map's.
type VerifiableLog struct {
	transport Transport
	path      string
	verifier  *logverifier.LogVerifier
	sleep     SleepFunc
}

func newVerifiableLog(t Transport, path string, sleep SleepFunc) *VerifiableLog {
	if sleep == nil {
		sleep = SleepContext
	}
	return &VerifiableLog{
		transport: t,
		path:      path,
		verifier:  logverifier.NewLogVerifier(nil),
		sleep:     sleep,
	}
}

// Path is the path of the log relative to the account.
func (l *VerifiableLog) Path() string {
	return l.path
}

// TreeHead returns the log tree head for the given size.
func (l *VerifiableLog) TreeHead(ctx context.Context, size TreeSize) (*LogTreeHead, error) {
	s, err := size.wire()
	if err != nil {
		return nil, fmt.Errorf("LogTreeHead | %w", err)
	}
	path := l.path + "/tree/" + s
	resp, err := doRequest(ctx, l.transport, "LogTreeHead", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	head, err := parseLogTreeHead(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("LogTreeHead | %s | %w", path, err)
	}
	return head, nil
}

// InclusionProof returns the proof that leafHash is included in the log of the given size.
func (l *VerifiableLog) InclusionProof(ctx context.Context, size TreeSize, leafHash []byte,
) (*LogInclusionProof, error) {

	s, err := size.wire()
	if err != nil {
		return nil, fmt.Errorf("InclusionProof | %w", err)
	}
	path := l.path + "/tree/" + s + "/inclusion/h/" + hex.EncodeToString(leafHash)
	resp, err := doRequest(ctx, l.transport, "InclusionProof", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	proof := &LogInclusionProof{}
	if err := json.Unmarshal(resp.Body, proof); err != nil {
		return nil, fmt.Errorf("InclusionProof | %s | %w: %v", path, ErrInternal, err)
	}
	proof.LeafHash = append([]byte(nil), leafHash...)
	return proof, nil
}

// ConsistencyProof returns the proof that the log at secondSize extends the log at firstSize.
func (l *VerifiableLog) ConsistencyProof(ctx context.Context, firstSize, secondSize int64,
) (*LogConsistencyProof, error) {

	if firstSize <= 0 || secondSize <= firstSize {
		return nil, fmt.Errorf("ConsistencyProof | %w: sizes %d and %d",
			ErrInvalidRange, firstSize, secondSize)
	}
	path := l.path + "/tree/" + strconv.FormatInt(secondSize, 10) +
		"/consistency/" + strconv.FormatInt(firstSize, 10)
	resp, err := doRequest(ctx, l.transport, "ConsistencyProof", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	proof := &LogConsistencyProof{}
	if err := json.Unmarshal(resp.Body, proof); err != nil {
		return nil, fmt.Errorf("ConsistencyProof | %s | %w: %v", path, ErrInternal, err)
	}
	proof.FirstSize = firstSize
	proof.SecondSize = secondSize
	return proof, nil
}

// VerifyInclusion checks the inclusion proof against a trusted head of this log.
func (l *VerifiableLog) VerifyInclusion(head *LogTreeHead, proof *LogInclusionProof) error {
	if proof.TreeSize != head.TreeSize {
		return fmt.Errorf("%w: proof for size %d, head of size %d",
			logverifier.ErrVerificationFailed, proof.TreeSize, head.TreeSize)
	}
	return l.verifier.VerifyInclusionByHash(head.LogRoot(), proof.LeafHash,
		[]*trillian.Proof{proof.Proof()})
}

// VerifyConsistency checks that newer extends older, using proof when the sizes differ.
func (l *VerifiableLog) VerifyConsistency(older, newer *LogTreeHead, proof *LogConsistencyProof,
) error {

	var hashes [][]byte
	if proof != nil {
		if proof.FirstSize != older.TreeSize || proof.SecondSize != newer.TreeSize {
			return fmt.Errorf("%w: proof for sizes %d->%d, heads of sizes %d->%d",
				logverifier.ErrVerificationFailed, proof.FirstSize, proof.SecondSize,
				older.TreeSize, newer.TreeSize)
		}
		hashes = proof.AuditPath
	}
	_, err := l.verifier.VerifyRoot(older.LogRoot(), newer.LogRoot(), hashes)
	return err
}

// BlockUntilPresent polls the log head until the entry with leafHash is included in it, and
// returns the first head verified to include it. Like BlockUntilSize it backs off while the
// log does not grow and never times out on its own.
func (l *VerifiableLog) BlockUntilPresent(ctx context.Context, leafHash []byte,
) (*LogTreeHead, error) {

	b := newGrowthBackoff()
	for {
		head, err := l.TreeHead(ctx, Head)
		if err != nil {
			return nil, err
		}
		if b.observe(head.TreeSize) {
			if head.TreeSize > 0 {
				proof, err := l.InclusionProof(ctx, Exact(head.TreeSize), leafHash)
				switch {
				case err == nil:
					if err := l.VerifyInclusion(head, proof); err != nil {
						return nil, err
					}
					return head, nil
				case notSequenced(err):
					// Keep polling.
				default:
					return nil, err
				}
			}
			b.reset()
		}
		glog.V(1).Infof("%s at size %d, leaf %x not present yet, next poll in %s",
			l.path, b.lastObservedSize, leafHash, b.delay)
		if err := l.sleep(ctx, b.delay); err != nil {
			return nil, err
		}
	}
}

// notSequenced is true if the server refused an inclusion proof because it does not know
// the leaf yet, as opposed to a failure of the request or of its decoding.
func notSequenced(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.StatusCode == http.StatusBadRequest || reqErr.StatusCode == http.StatusNotFound
}

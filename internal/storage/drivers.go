package storage

// Importing these packages for their side effects registers the s3:// and
// gs:// URL schemes with gocloud.dev/blob.OpenBucket, so OpenBucket can
// dispatch to S3 or Google Cloud Storage without callers importing the
// driver packages themselves.
import (
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://my-bucket/path/to/object.tar.gz")
	assert.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/object.tar.gz", key)
}

func TestParseURIRejectsNonS3Scheme(t *testing.T) {
	_, _, err := ParseURI("https://example.com/object")
	assert.Error(t, err)
}

func TestParseURIRejectsMissingKey(t *testing.T) {
	_, _, err := ParseURI("s3://my-bucket")
	assert.Error(t, err)

	_, _, err = ParseURI("s3://my-bucket/")
	assert.Error(t, err)
}

func TestParseURIRejectsMissingBucket(t *testing.T) {
	_, _, err := ParseURI("s3:///key")
	assert.Error(t, err)
}

func TestParentDir(t *testing.T) {
	assert.Equal(t, "a/b", parentDir("a/b/c.txt"))
	assert.Equal(t, "", parentDir("c.txt"))
	assert.Equal(t, "", parentDir("/c.txt"))
}

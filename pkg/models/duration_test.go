/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", input: `"500ms"`, want: 500 * time.Millisecond},
		{name: "nanoseconds number", input: `1000000000`, want: time.Second},
		{name: "bad string", input: `"not-a-duration"`, wantErr: true},
		{name: "wrong type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var cfg struct {
		Delay Duration `yaml:"delay"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("delay: 2s\n"), &cfg))
	assert.Equal(t, 2*time.Second, cfg.Delay.Duration())
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, ParseStatus("success"))
	assert.Equal(t, StatusTimeout, ParseStatus("timeout"))
	assert.Equal(t, StatusUnset, ParseStatus(""))
	assert.Equal(t, StatusUnset, ParseStatus("garbage"))
}

package stepconf

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

func validEnvs() map[string]string {
	return map[string]string{
		SourceKey:      "images/disk.vhd",
		ContainerKey:   "vhds",
		AccountNameKey: "myaccount",
		AccountKeyKey:  "c2VjcmV0",
	}
}

func TestLoad_Defaults(t *testing.T) {
	config, err := Load(fakeEnvRepo{envVars: validEnvs()})
	require.NoError(t, err)

	assert.Equal(t, []string{"images/disk.vhd"}, config.Sources)
	assert.Equal(t, "vhds", config.Container)
	assert.Equal(t, "myaccount", config.AccountName)
	assert.Equal(t, Secret("c2VjcmV0"), config.AccountKey)
	assert.Equal(t, 12, config.Upload.Concurrency)
	assert.Equal(t, int64(2*1024*1024), config.Upload.MaxChunkSize)
	assert.Equal(t, 5, config.Upload.MaxRetryPerChunk)
	assert.Equal(t, 10*time.Second, config.Upload.RetryWait)
	assert.Equal(t, 120*time.Second, config.Upload.RemoteTimeout)
	assert.True(t, config.Upload.SkipZeroChunks)
	assert.False(t, config.Verbose)
}

func TestLoad_Overrides(t *testing.T) {
	envs := validEnvs()
	envs[SourceKey] = "a.vhd\nb.vhd | s3://bucket/c.vhd.zst\n"
	envs[WorkersKey] = "4"
	envs[ChunkSizeKey] = "4MiB"
	envs[MaxRetriesKey] = "2"
	envs[RetryWaitKey] = "1s"
	envs[TimeoutKey] = "30s"
	envs[SkipZeroChunksKey] = "no"
	envs[VerboseKey] = "yes"
	envs[AWSRegionKey] = "eu-west-1"
	envs[StagingDirKey] = "/tmp/stage"

	config, err := Load(fakeEnvRepo{envVars: envs})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.vhd", "b.vhd", "s3://bucket/c.vhd.zst"}, config.Sources)
	assert.Equal(t, 4, config.Upload.Concurrency)
	assert.Equal(t, int64(4*1024*1024), config.Upload.MaxChunkSize)
	assert.Equal(t, 2, config.Upload.MaxRetryPerChunk)
	assert.Equal(t, time.Second, config.Upload.RetryWait)
	assert.Equal(t, 30*time.Second, config.Upload.RemoteTimeout)
	assert.False(t, config.Upload.SkipZeroChunks)
	assert.True(t, config.Verbose)
	assert.Equal(t, "eu-west-1", config.Source.S3.Region)
	assert.Equal(t, "/tmp/stage", config.Source.StagingDir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]string)
	}{
		{name: "missing source", modify: func(e map[string]string) { delete(e, SourceKey) }},
		{name: "missing container", modify: func(e map[string]string) { delete(e, ContainerKey) }},
		{name: "missing account", modify: func(e map[string]string) { delete(e, AccountNameKey) }},
		{name: "blob name with many sources", modify: func(e map[string]string) {
			e[SourceKey] = "a.vhd|b.vhd"
			e[BlobKey] = "disk.vhd"
		}},
		{name: "invalid workers", modify: func(e map[string]string) { e[WorkersKey] = "many" }},
		{name: "zero workers", modify: func(e map[string]string) { e[WorkersKey] = "0" }},
		{name: "invalid chunk size", modify: func(e map[string]string) { e[ChunkSizeKey] = "big" }},
		{name: "unaligned chunk size", modify: func(e map[string]string) { e[ChunkSizeKey] = "1000" }},
		{name: "chunk size above write limit", modify: func(e map[string]string) { e[ChunkSizeKey] = "8MiB" }},
		{name: "invalid retry wait", modify: func(e map[string]string) { e[RetryWaitKey] = "10" }},
		{name: "invalid bool", modify: func(e map[string]string) { e[SkipZeroChunksKey] = "maybe" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := validEnvs()
			tt.modify(envs)

			_, err := Load(fakeEnvRepo{envVars: envs})
			assert.Error(t, err)
		})
	}
}

func TestLoad_ServiceURLWithoutAccount(t *testing.T) {
	envs := validEnvs()
	delete(envs, AccountNameKey)
	delete(envs, AccountKeyKey)
	envs[ServiceURLKey] = "https://myaccount.blob.core.windows.net/?sv=token"

	config, err := Load(fakeEnvRepo{envVars: envs})
	require.NoError(t, err)
	assert.Equal(t, "*****", config.ServiceURL.String())
}

func TestSecret_String(t *testing.T) {
	assert.Equal(t, "", Secret("").String())
	assert.Equal(t, "*****", Secret("password").String())
	assert.Equal(t, "*****", fmt.Sprintf("%s", Secret("password")))
}

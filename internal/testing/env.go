package testing

import "fmt"

// FakeEnvRepo is an in-memory env.Repository.
type FakeEnvRepo struct {
	EnvVars map[string]string
}

// NewFakeEnvRepo ...
func NewFakeEnvRepo(envVars map[string]string) FakeEnvRepo {
	if envVars == nil {
		envVars = map[string]string{}
	}
	return FakeEnvRepo{EnvVars: envVars}
}

func (repo FakeEnvRepo) Get(key string) string { //nolint:revive
	return repo.EnvVars[key]
}

func (repo FakeEnvRepo) Set(key, value string) error { //nolint:revive
	repo.EnvVars[key] = value
	return nil
}

func (repo FakeEnvRepo) Unset(key string) error { //nolint:revive
	delete(repo.EnvVars, key)
	return nil
}

func (repo FakeEnvRepo) List() []string { //nolint:revive
	envs := []string{}
	for k, v := range repo.EnvVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

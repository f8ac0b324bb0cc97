package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// DeploymentSection is the INI section holding job service settings.
const DeploymentSection = "NarrativeJobService"

// Deployment is the tracking-database subset of the legacy deployment file.
type Deployment struct {
	Host         string
	AuthDatabase string
	Username     string
	Password     string
	Database     string
}

// LoadDeploymentConfig reads the legacy INI deployment file.
//
// Credentials are defined in the ujs database, while the jobs collection
// lives in the job service database.
func LoadDeploymentConfig(path string) (*Deployment, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load deployment config %s: %w", path, err)
	}
	sec, err := f.GetSection(DeploymentSection)
	if err != nil {
		return nil, fmt.Errorf("deployment config %s: %w", path, err)
	}

	d := &Deployment{
		Host:         sec.Key("ujs-mongodb-host").String(),
		AuthDatabase: sec.Key("ujs-mongodb-database").String(),
		Username:     sec.Key("ujs-mongodb-user").String(),
		Password:     sec.Key("ujs-mongodb-pwd").String(),
		Database:     sec.Key("mongodb-database").String(),
	}
	if d.Host == "" {
		return nil, fmt.Errorf("deployment config %s: ujs-mongodb-host is required", path)
	}
	if d.Database == "" {
		return nil, fmt.Errorf("deployment config %s: mongodb-database is required", path)
	}
	return d, nil
}

func (d *Deployment) toMap() map[string]any {
	m := map[string]any{
		"host":     d.Host,
		"database": d.Database,
	}
	if d.AuthDatabase != "" {
		m["auth_database"] = d.AuthDatabase
	}
	if d.Username != "" {
		m["username"] = d.Username
		m["password"] = d.Password
	}
	return m
}

package store

// schema creates every table idempotently. patient_username is indexed but
// not a foreign key: records may name a patient who has no account yet.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('Doctor', 'Patient'))
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id BIGSERIAL PRIMARY KEY,
		patient_username TEXT NOT NULL,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		sex TEXT NOT NULL,
		prediction INTEGER NOT NULL CHECK (prediction IN (0, 1)),
		score INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
		date TEXT NOT NULL,
		details TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_patient_username_idx ON records (patient_username)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id BIGSERIAL PRIMARY KEY,
		patient_username TEXT NOT NULL,
		patient_name TEXT NOT NULL,
		appointment_date TEXT NOT NULL,
		appointment_time TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Scheduled'
	)`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
		id BIGSERIAL PRIMARY KEY,
		patient_username TEXT NOT NULL,
		doctor_username TEXT NOT NULL,
		medication TEXT NOT NULL,
		dosage TEXT NOT NULL,
		frequency TEXT NOT NULL,
		date TEXT NOT NULL
	)`,
}

package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_enrollments", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_grade_nodes", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_alerts", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    gpa DOUBLE PRECISION,
    total_credits INTEGER NOT NULL DEFAULT 0,
    standing VARCHAR(20) NOT NULL DEFAULT 'NORMAL',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_standing CHECK (standing IN ('NORMAL', 'AT_RISK', 'PROBATION', 'GRADUATED')),
    CONSTRAINT valid_gpa CHECK (gpa IS NULL OR (gpa >= 0 AND gpa <= 4)),
    CONSTRAINT valid_credits CHECK (total_credits >= 0)
);

CREATE INDEX IF NOT EXISTS idx_students_standing ON students(standing);
`

const migration001Down = `
DROP TABLE IF EXISTS students CASCADE;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS enrollments (
    id VARCHAR(64) PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_code VARCHAR(50) NOT NULL,
    credits INTEGER NOT NULL,
    grading_scale VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
    final_score DOUBLE PRECISION,
    letter_grade VARCHAR(3),
    gpa_value DOUBLE PRECISION,
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_credits CHECK (credits > 0),
    CONSTRAINT valid_scale CHECK (grading_scale IN ('SCALE_10', 'SCALE_4', 'PASS_FAIL')),
    CONSTRAINT valid_status CHECK (status IN ('ACTIVE', 'COMPLETED', 'WITHDRAWN')),
    CONSTRAINT valid_final_score CHECK (final_score IS NULL OR (final_score >= 0 AND final_score <= 10))
);

CREATE INDEX IF NOT EXISTS idx_enrollments_student_id ON enrollments(student_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_student_status ON enrollments(student_id, status);
`

const migration002Down = `
DROP TABLE IF EXISTS enrollments CASCADE;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE GRADE NODES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS grade_nodes (
    id VARCHAR(64) PRIMARY KEY,
    enrollment_id VARCHAR(64) NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    parent_id VARCHAR(64) REFERENCES grade_nodes(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    weight DOUBLE PRECISION NOT NULL,
    raw_score DOUBLE PRECISION,
    position INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_weight CHECK (weight >= 0 AND weight <= 1),
    CONSTRAINT valid_raw_score CHECK (raw_score IS NULL OR (raw_score >= 0 AND raw_score <= 10))
);

CREATE INDEX IF NOT EXISTS idx_grade_nodes_enrollment ON grade_nodes(enrollment_id, position);
CREATE INDEX IF NOT EXISTS idx_grade_nodes_parent ON grade_nodes(parent_id);
`

const migration003Down = `
DROP TABLE IF EXISTS grade_nodes CASCADE;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE ALERTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS alerts (
    id VARCHAR(64) PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    level VARCHAR(20) NOT NULL,
    type VARCHAR(20) NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level IN ('INFO', 'WARNING', 'HIGH', 'CRITICAL')),
    CONSTRAINT valid_type CHECK (type IN ('LOW_GPA', 'GPA_DROP', 'STATUS_CHANGE', 'PROBATION', 'IMPROVEMENT'))
);

CREATE INDEX IF NOT EXISTS idx_alerts_student_created ON alerts(student_id, created_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS alerts CASCADE;
`

package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- USER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON user TYPE string;
    -- Credits never go negative: every debit is WHERE-guarded and the field
    -- assertion is the backstop.
    DEFINE FIELD IF NOT EXISTS credits ON user TYPE int DEFAULT 0 ASSERT $value >= 0;
    DEFINE FIELD IF NOT EXISTS created_at ON user TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user ON conversation TYPE record<user>;
    DEFINE FIELD IF NOT EXISTS model ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_user ON conversation FIELDS user;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string
        ASSERT $value IN ["user", "assistant", "system"];
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON message TYPE string
        ASSERT $value IN ["streaming", "complete", "error"];
    DEFINE FIELD IF NOT EXISTS token_count ON message TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation;
    DEFINE INDEX IF NOT EXISTS message_status ON message FIELDS conversation, status;

    -- ==========================================================================
    -- IMAGE JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS image_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user ON image_job TYPE record<user>;
    DEFINE FIELD IF NOT EXISTS conversation ON image_job TYPE option<record<conversation>>;
    DEFINE FIELD IF NOT EXISTS prompt ON image_job TYPE string;
    DEFINE FIELD IF NOT EXISTS resolution ON image_job TYPE string
        ASSERT $value IN ["512", "768", "1024"];
    DEFINE FIELD IF NOT EXISTS status ON image_job TYPE string
        ASSERT $value IN ["pending", "processing", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS cost ON image_job TYPE int;
    DEFINE FIELD IF NOT EXISTS asset_ref ON image_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON image_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON image_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON image_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS image_job_user ON image_job FIELDS user;
    DEFINE INDEX IF NOT EXISTS image_job_status ON image_job FIELDS status;
`

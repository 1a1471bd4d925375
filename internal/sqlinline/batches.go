package sqlinline

const QCreateBatchesTable = `--sql 61ec1566-54a2-4f77-8b53-0a2a3ca4d8c6
create table if not exists generation_batches (
  id           uuid primary key,
  status       text not null,
  total_images int not null,
  max_attempts text not null,
  base_payload jsonb not null default '{}'::jsonb,
  succeeded    int not null default 0,
  failed       int not null default 0,
  started_at   timestamptz not null,
  finished_at  timestamptz
);
`

const QCreateOutcomesTable = `--sql a44f35fe-0556-4b18-a486-c677c81805e9
create table if not exists generation_outcomes (
  batch_id      uuid not null references generation_batches(id) on delete cascade,
  image_index   int not null,
  ok            boolean not null,
  filename      text not null default '',
  artifact_path text not null default '',
  error_message text not null default '',
  attempts      int not null,
  recorded_at   timestamptz not null default now(),
  primary key (batch_id, image_index)
);
`

const QInsertBatch = `--sql 79b7362f-5cc3-4403-9789-9fc1e4b35776
insert into generation_batches(id, status, total_images, max_attempts, base_payload, started_at)
values ($1::uuid, $2, $3::int, $4, $5::jsonb, $6);
`

const QUpsertOutcome = `--sql 7e6fa7ac-90ae-4014-9b99-e1ae48ee6043
insert into generation_outcomes(batch_id, image_index, ok, filename, artifact_path, error_message, attempts)
values ($1::uuid, $2::int, $3, $4, $5, $6, $7::int)
on conflict (batch_id, image_index) do update
set ok = excluded.ok,
    filename = excluded.filename,
    artifact_path = excluded.artifact_path,
    error_message = excluded.error_message,
    attempts = excluded.attempts,
    recorded_at = now();
`

const QFinishBatch = `--sql 16410669-42d9-4112-ac75-11ada694d4d4
update generation_batches
set status = $2,
    succeeded = $3::int,
    failed = $4::int,
    finished_at = $5
where id = $1::uuid;
`

const QSelectBatchByID = `--sql 4dc62ffb-6a87-4523-bfd9-dc488464f9b1
select id::text, status, total_images, max_attempts, base_payload, succeeded, failed, started_at, finished_at
from generation_batches
where id = $1::uuid
limit 1;
`

const QListOutcomesByBatch = `--sql b293e0fb-89ca-4a3b-af73-18de495e16c8
select ok, filename, artifact_path, error_message, attempts
from generation_outcomes
where batch_id = $1::uuid
order by image_index asc;
`
